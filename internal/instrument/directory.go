package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/scpibridge/internal/visa"
	"github.com/rs/zerolog/log"
)

// IdentifyTimeout bounds the identification read for one resource.
const IdentifyTimeout = 5 * time.Second

// Directory is the ordered snapshot advertised for one session.
type Directory struct {
	records []Record
	byAddr  map[string]struct{}
}

func NewDirectory(records []Record) Directory {
	out := Directory{
		records: append([]Record(nil), records...),
		byAddr:  make(map[string]struct{}, len(records)),
	}
	for _, rec := range records {
		out.byAddr[rec.Address] = struct{}{}
	}
	return out
}

// Records returns a copy in advertised order.
func (d Directory) Records() []Record {
	return append([]Record(nil), d.records...)
}

func (d Directory) Len() int {
	return len(d.records)
}

func (d Directory) Contains(address string) bool {
	_, ok := d.byAddr[address]
	return ok
}

// Index resolves a 1-based position.
func (d Directory) Index(i int) (Record, bool) {
	if i < 1 || i > len(d.records) {
		return Record{}, false
	}
	return d.records[i-1], true
}

// Enumerate lists resources, skips the manager's own meta-resource at index 0
// and identifies the rest in listing order. An instrument that fails to
// identify is logged and left out; only a listing failure is returned.
func Enumerate(ctx context.Context, rm visa.ResourceManager) (Directory, error) {
	addresses, err := rm.ListResources(ctx)
	if err != nil {
		return Directory{}, fmt.Errorf("instrument: list resources: %w", err)
	}
	if len(addresses) == 0 {
		return NewDirectory(nil), nil
	}

	records := make([]Record, 0, len(addresses)-1)
	for _, address := range addresses[1:] {
		if err := ctx.Err(); err != nil {
			return Directory{}, err
		}
		rec, err := Identify(ctx, rm, address)
		if err != nil {
			log.Warn().Err(err).Str("address", address).Msg("instrument.Enumerate skipping resource")
			continue
		}
		log.Info().
			Str("name", rec.Name).
			Str("manufacturer", rec.Manufacturer).
			Str("serial", rec.Serial).
			Str("address", rec.Address).
			Msg("instrument found")
		records = append(records, rec)
	}
	return NewDirectory(records), nil
}

// Identify opens address, issues the identification query and closes the
// resource before returning.
func Identify(ctx context.Context, rm visa.ResourceManager, address string) (rec Record, err error) {
	opts := visa.DefaultOpenOptions()
	opts.ReadTimeout = IdentifyTimeout
	res, err := rm.Open(ctx, address, opts)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if cerr := res.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := res.WriteLine(ctx, IdentifyCommand); err != nil {
		return Record{}, err
	}
	reply, err := res.ReadLine(ctx)
	if err != nil {
		return Record{}, err
	}
	return ParseIdentity(address, reply)
}
