package visa

import (
	"fmt"
	"strconv"
	"strings"
)

// ManagerAddress is the meta-resource every listing starts with.
const ManagerAddress = "RM0::MANAGER"

const (
	InterfaceTCPIP = "TCPIP"
	InterfaceASRL  = "ASRL"
	InterfaceSIM   = "SIM"
)

// Address is a parsed resource string.
type Address struct {
	Raw       string
	Interface string
	Board     string
	Parts     []string
	Class     string
}

var knownInterfaces = []string{InterfaceTCPIP, InterfaceASRL, InterfaceSIM}

// ParseAddress splits a resource string on "::". The first segment names the
// interface plus an optional board suffix, the last segment is the resource
// class.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	segments := strings.Split(raw, "::")
	if len(segments) < 2 || segments[0] == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	head := segments[0]
	upper := strings.ToUpper(head)
	for _, iface := range knownInterfaces {
		if strings.HasPrefix(upper, iface) {
			return Address{
				Raw:       raw,
				Interface: iface,
				Board:     head[len(iface):],
				Parts:     segments[1 : len(segments)-1],
				Class:     strings.ToUpper(segments[len(segments)-1]),
			}, nil
		}
	}
	return Address{}, fmt.Errorf("%w: %q", ErrUnknownInterface, raw)
}

// socketEndpoint returns host:port for TCPIP::host::port::SOCKET.
func (a Address) socketEndpoint() (string, error) {
	if a.Interface != InterfaceTCPIP || a.Class != "SOCKET" || len(a.Parts) != 2 {
		return "", fmt.Errorf("%w: %q is not a TCPIP socket resource", ErrInvalidAddress, a.Raw)
	}
	port, err := strconv.Atoi(a.Parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: %q has invalid port", ErrInvalidAddress, a.Raw)
	}
	host := a.Parts[0]
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

// serialPort returns the device path for an ASRL resource. A numeric board
// maps to /dev/ttyS<n>.
func (a Address) serialPort() (string, error) {
	if a.Interface != InterfaceASRL || a.Board == "" {
		return "", fmt.Errorf("%w: %q is not a serial resource", ErrInvalidAddress, a.Raw)
	}
	if strings.HasPrefix(a.Board, "/") {
		return a.Board, nil
	}
	n, err := strconv.Atoi(a.Board)
	if err != nil {
		return "", fmt.Errorf("%w: %q has invalid serial board", ErrInvalidAddress, a.Raw)
	}
	return fmt.Sprintf("/dev/ttyS%d", n), nil
}

// SerialAddress formats a device path as an ASRL resource string.
func SerialAddress(device string) string {
	return InterfaceASRL + device + "::INSTR"
}
