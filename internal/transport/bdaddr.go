package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// BDAddr is a Bluetooth device address in display order.
type BDAddr [6]byte

// ParseBDAddr parses "AA:BB:CC:DD:EE:FF". An empty string is BDADDR_ANY.
func ParseBDAddr(s string) (BDAddr, error) {
	var out BDAddr
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return out, fmt.Errorf("%w: %q", ErrInvalidAddr, s)
		}
		out[i] = b[0]
	}
	return out, nil
}

func (a BDAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// wire returns the little-endian byte order the kernel expects.
func (a BDAddr) wire() [6]byte {
	var out [6]byte
	for i := range a {
		out[i] = a[5-i]
	}
	return out
}

func bdAddrFromWire(w [6]byte) BDAddr {
	var out BDAddr
	for i := range w {
		out[i] = w[5-i]
	}
	return out
}

// rfcommAddr is the net.Addr of an RFCOMM endpoint.
type rfcommAddr struct {
	addr    BDAddr
	channel uint8
}

func (a rfcommAddr) Network() string { return KindRFCOMM }

func (a rfcommAddr) String() string {
	return fmt.Sprintf("%s/%d", a.addr, a.channel)
}
