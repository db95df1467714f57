package visa

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/jacobsa/go-serial/serial"
)

// SerialConfig carries line settings for one ASRL resource.
type SerialConfig struct {
	BaudRate uint
	DataBits uint
	StopBits uint
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{BaudRate: 9600, DataBits: 8, StopBits: 1}
}

// serialOpener opens ASRL resources through the OS serial driver.
type serialOpener struct {
	settings func(address string) SerialConfig
}

func (o serialOpener) Open(_ context.Context, addr Address, opts OpenOptions) (Resource, error) {
	port, err := addr.serialPort()
	if err != nil {
		return nil, err
	}
	cfg := DefaultSerialConfig()
	if o.settings != nil {
		cfg = o.settings(addr.Raw)
	}
	// With MinimumReadSize 0 and an inter-character timeout the driver
	// returns idle reads every 100ms, which lets ReadLine honor deadlines.
	rw, err := serial.Open(serial.OpenOptions{
		PortName:              port,
		BaudRate:              cfg.BaudRate,
		DataBits:              cfg.DataBits,
		StopBits:              cfg.StopBits,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	})
	if err != nil {
		return nil, err
	}
	res, err := newLineResource(addr.Raw, rw, opts)
	if err != nil {
		_ = rw.Close()
		return nil, err
	}
	res.pollEOF = true
	return res, nil
}

// expandSerialGlobs lists matching device paths as sorted ASRL addresses.
func expandSerialGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			addr := SerialAddress(m)
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out, nil
}
