package visa

import (
	"errors"
	"testing"
)

func TestParseAddressForms(t *testing.T) {
	cases := []struct {
		raw   string
		iface string
		board string
		class string
		parts int
	}{
		{"TCPIP0::10.0.0.5::5025::SOCKET", InterfaceTCPIP, "0", "SOCKET", 2},
		{"ASRL/dev/ttyUSB0::INSTR", InterfaceASRL, "/dev/ttyUSB0", "INSTR", 0},
		{"asrl3::instr", InterfaceASRL, "3", "INSTR", 0},
		{"SIM::DMM0::INSTR", InterfaceSIM, "", "INSTR", 1},
	}
	for _, tc := range cases {
		addr, err := ParseAddress(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if addr.Interface != tc.iface || addr.Board != tc.board || addr.Class != tc.class || len(addr.Parts) != tc.parts {
			t.Fatalf("parse %q: unexpected %+v", tc.raw, addr)
		}
	}
}

func TestParseAddressRejectsManagerAndGarbage(t *testing.T) {
	if _, err := ParseAddress(ManagerAddress); !errors.Is(err, ErrUnknownInterface) {
		t.Fatalf("expected ErrUnknownInterface for manager address, got %v", err)
	}
	if _, err := ParseAddress("nonsense"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSocketEndpointAndSerialPort(t *testing.T) {
	addr, _ := ParseAddress("TCPIP::fe80::1::5025::SOCKET")
	if _, err := addr.socketEndpoint(); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ambiguous ipv6 form to be rejected, got %v", err)
	}

	addr, _ = ParseAddress("TCPIP0::192.168.1.20::5025::SOCKET")
	endpoint, err := addr.socketEndpoint()
	if err != nil || endpoint != "192.168.1.20:5025" {
		t.Fatalf("unexpected endpoint %q err=%v", endpoint, err)
	}

	addr, _ = ParseAddress("ASRL2::INSTR")
	port, err := addr.serialPort()
	if err != nil || port != "/dev/ttyS2" {
		t.Fatalf("unexpected serial port %q err=%v", port, err)
	}
	if got := SerialAddress("/dev/ttyACM0"); got != "ASRL/dev/ttyACM0::INSTR" {
		t.Fatalf("unexpected serial address %q", got)
	}
}
