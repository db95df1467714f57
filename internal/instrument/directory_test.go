package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/scpibridge/internal/testutil/fakevisa"
	"github.com/danmuck/scpibridge/internal/testutil/testlog"
	"github.com/danmuck/scpibridge/internal/visa"
)

func threeInstruments() *fakevisa.Manager {
	return fakevisa.New().
		Add("TCPIP0::10.0.0.5::5025::SOCKET", fakevisa.Instrument{IDN: "Keysight Technologies,34461A,MY53212345,A.02.14"}).
		Add("ASRL/dev/ttyUSB0::INSTR", fakevisa.Instrument{IDN: "RIGOL TECHNOLOGIES, DP832 , DP8C1234,00.01.14"}).
		Add("SIM::SCOPE::INSTR", fakevisa.Instrument{IDN: "Tektronix,MSO44,C012345"})
}

func TestEnumerateSkipsManagerEntry(t *testing.T) {
	testlog.Start(t)
	rm := threeInstruments()

	dir, err := Enumerate(context.Background(), rm)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	listing, _ := rm.ListResources(context.Background())
	if dir.Len() != len(listing)-1 {
		t.Fatalf("expected %d records, got %d", len(listing)-1, dir.Len())
	}
	if dir.Contains(visa.ManagerAddress) {
		t.Fatalf("directory must not contain the manager meta-resource")
	}
	if got := rm.Calls(visa.ManagerAddress); got.Opens != 0 {
		t.Fatalf("manager meta-resource must never be opened, opens=%d", got.Opens)
	}

	want := []Record{
		{Manufacturer: "Keysight Technologies", Name: "34461A", Serial: "MY53212345", Address: "TCPIP0::10.0.0.5::5025::SOCKET"},
		{Manufacturer: "RIGOL TECHNOLOGIES", Name: "DP832", Serial: "DP8C1234", Address: "ASRL/dev/ttyUSB0::INSTR"},
		{Manufacturer: "Tektronix", Name: "MSO44", Serial: "C012345", Address: "SIM::SCOPE::INSTR"},
	}
	for i, rec := range dir.Records() {
		if rec != want[i] {
			t.Fatalf("record %d: got %+v want %+v", i, rec, want[i])
		}
	}
	first, ok := dir.Index(1)
	if !ok || first.Address != want[0].Address {
		t.Fatalf("index 1 should resolve to the first listed instrument, got %+v ok=%v", first, ok)
	}
	if _, ok := dir.Index(0); ok {
		t.Fatalf("index 0 must not resolve")
	}
	if _, ok := dir.Index(4); ok {
		t.Fatalf("index past the end must not resolve")
	}
}

func TestEnumerateIsolatesBrokenInstruments(t *testing.T) {
	testlog.Start(t)
	rm := fakevisa.New().
		Add("SIM::A::INSTR", fakevisa.Instrument{IDN: "Acme,Meter,001"}).
		Add("SIM::B::INSTR", fakevisa.Instrument{ReadErr: fakevisa.ErrInjected}).
		Add("SIM::C::INSTR", fakevisa.Instrument{OpenErr: fakevisa.ErrInjected}).
		Add("SIM::D::INSTR", fakevisa.Instrument{IDN: "garbage"}).
		Add("SIM::E::INSTR", fakevisa.Instrument{IDN: "Acme,Supply,002,1.0"})

	dir, err := Enumerate(context.Background(), rm)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if dir.Len() != 2 || !dir.Contains("SIM::A::INSTR") || !dir.Contains("SIM::E::INSTR") {
		t.Fatalf("unexpected directory %+v", dir.Records())
	}
	for _, addr := range []string{"SIM::A::INSTR", "SIM::B::INSTR", "SIM::D::INSTR", "SIM::E::INSTR"} {
		c := rm.Calls(addr)
		if c.Opens != 1 || c.Closes != 1 {
			t.Fatalf("%s: expected one open and one close, got %+v", addr, c)
		}
	}
	if c := rm.Calls("SIM::C::INSTR"); c.Closes != 0 {
		t.Fatalf("failed open must not be closed, got %+v", c)
	}
}

func TestEnumerateListFailure(t *testing.T) {
	testlog.Start(t)
	rm := threeInstruments()
	rm.FailList(fakevisa.ErrInjected)

	if _, err := Enumerate(context.Background(), rm); !errors.Is(err, fakevisa.ErrInjected) {
		t.Fatalf("expected list failure, got %v", err)
	}
}

func TestEnumerateEmptyListing(t *testing.T) {
	testlog.Start(t)

	dir, err := Enumerate(context.Background(), fakevisa.New())
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if dir.Len() != 0 {
		t.Fatalf("expected empty directory, got %d", dir.Len())
	}
}

func TestEnumerateIsDeterministic(t *testing.T) {
	testlog.Start(t)
	rm := threeInstruments()

	a, err := Enumerate(context.Background(), rm)
	if err != nil {
		t.Fatalf("first enumerate: %v", err)
	}
	b, err := Enumerate(context.Background(), rm)
	if err != nil {
		t.Fatalf("second enumerate: %v", err)
	}
	ra, rb := a.Records(), b.Records()
	for i := range ra {
		if ra[i] != rb[i] {
			t.Fatalf("order changed at %d: %+v vs %+v", i, ra[i], rb[i])
		}
	}
}

func TestParseIdentity(t *testing.T) {
	testlog.Start(t)

	rec, err := ParseIdentity("SIM::X::INSTR", "Acme, Widget ,SN9,fw2,extra\r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.Manufacturer != "Acme" || rec.Name != "Widget" || rec.Serial != "SN9" || rec.Address != "SIM::X::INSTR" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, err := ParseIdentity("SIM::X::INSTR", "Acme,Widget"); !errors.Is(err, ErrMalformedIdentity) {
		t.Fatalf("expected ErrMalformedIdentity, got %v", err)
	}
}
