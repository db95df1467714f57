package session

import (
	"errors"
	"testing"

	"github.com/danmuck/scpibridge/internal/protocol/frame"
	"github.com/danmuck/scpibridge/internal/protocol/schema"
	"github.com/danmuck/scpibridge/internal/protocol/tlv"
	"github.com/danmuck/scpibridge/internal/testutil/testlog"
)

func TestDirectoryRoundTripPreservesEveryField(t *testing.T) {
	testlog.Start(t)

	in := []Instrument{
		{Name: "34461A", Manufacturer: "Keysight Technologies", Serial: "MY53212345", Address: "TCPIP0::10.0.0.5::5025::SOCKET"},
		{Name: "DP832", Manufacturer: "RIGOL TECHNOLOGIES", Serial: "DP8C1234", Address: "ASRL/dev/ttyUSB0::INSTR"},
		{Name: "", Manufacturer: "Sim", Serial: "0", Address: "SIM::EMPTY::INSTR"},
	}
	f, err := EncodeDirectory(1, in)
	if err != nil {
		t.Fatalf("encode directory: %v", err)
	}
	out, err := DecodeDirectory(f)
	if err != nil {
		t.Fatalf("decode directory: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("record count mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("record %d mismatch: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestDirectoryEmptyRoundTrip(t *testing.T) {
	testlog.Start(t)

	f, err := EncodeDirectory(1, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeDirectory(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty directory, got %+v", out)
	}
}

func TestDecodeDirectoryRejectsIncompleteRecord(t *testing.T) {
	testlog.Start(t)

	f := newFrame(1, schema.MsgDirectory, 0, []tlv.Field{
		tlv.Nested(schema.FieldRecord, []tlv.Field{tlv.String(schema.FieldAddress, "SIM::A::INSTR")}),
	})
	if _, err := DecodeDirectory(f); err == nil {
		t.Fatalf("expected incomplete record to fail")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	testlog.Start(t)

	in := Command{Address: "SIM::DMM0::INSTR", Command: "CONF:VOLT:DC 10,0.001"}
	f, err := EncodeCommand(7, in)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	out, err := DecodeCommand(f)
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if out != in || f.Header.MessageID != 7 {
		t.Fatalf("command mismatch: got %+v id=%d", out, f.Header.MessageID)
	}
}

func TestEncodeCommandRejectsEmptyFields(t *testing.T) {
	testlog.Start(t)

	if _, err := EncodeCommand(1, Command{Address: "SIM::A::INSTR"}); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestReplyCarriesErrorFlag(t *testing.T) {
	testlog.Start(t)

	f := EncodeReply(9, Reply{Text: "An exception occured: timeout", IsError: true})
	if f.Header.Flags&frame.FlagIsError == 0 {
		t.Fatalf("expected error flag on frame")
	}
	out, err := DecodeReply(f)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !out.IsError || out.Text != "An exception occured: timeout" {
		t.Fatalf("unexpected reply: %+v", out)
	}
}

func TestDecodeRejectsWrongMessageType(t *testing.T) {
	testlog.Start(t)

	f := EncodeReply(1, Reply{Text: "1.234"})
	if _, err := DecodeCommand(f); !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
}
