package console

import (
	"errors"
	"testing"

	"github.com/danmuck/scpibridge/internal/testutil/testlog"
)

func TestParseLineSplitsInstructions(t *testing.T) {
	testlog.Start(t)

	got := ParseLine(" 1 MEAS:VOLT? ; 2 OUTP ON;;3 SOUR:VOLT 5.0 ")
	want := []Instruction{
		{Index: 1, Command: "MEAS:VOLT?"},
		{Index: 2, Command: "OUTP ON"},
		{Index: 3, Command: "SOUR:VOLT 5.0"},
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected instructions %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instruction %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestParseLineReportsMalformedEntries(t *testing.T) {
	testlog.Start(t)

	got := ParseLine("MEAS:VOLT?; x *RST; 2; 1 *IDN?")
	if len(got) != 4 {
		t.Fatalf("unexpected instructions %+v", got)
	}
	for i := 0; i < 3; i++ {
		if !errors.Is(got[i].Err, ErrMalformedInstruction) {
			t.Fatalf("entry %d: expected ErrMalformedInstruction, got %+v", i, got[i])
		}
	}
	if got[3].Err != nil || got[3].Index != 1 || got[3].Command != "*IDN?" {
		t.Fatalf("valid entry after bad ones must survive, got %+v", got[3])
	}
}

func TestIsQuit(t *testing.T) {
	testlog.Start(t)
	for _, line := range []string{"q", "Q", " q\n"} {
		if !IsQuit(line) {
			t.Fatalf("%q should quit", line)
		}
	}
	for _, line := range []string{"quit", "1 q", ""} {
		if IsQuit(line) {
			t.Fatalf("%q should not quit", line)
		}
	}
}
