package instrument

import (
	"errors"
	"fmt"
	"strings"
)

// IdentifyCommand is the identification query sent to every resource.
const IdentifyCommand = "*IDN?"

var ErrMalformedIdentity = errors.New("instrument: malformed identification reply")

// Record is the identity of one discovered instrument.
type Record struct {
	Name         string
	Manufacturer string
	Serial       string
	Address      string
}

// ParseIdentity splits an identification reply into manufacturer, model name
// and serial. Trailing fields such as firmware revisions are ignored.
func ParseIdentity(address, reply string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	if len(fields) < 3 {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedIdentity, reply)
	}
	return Record{
		Manufacturer: strings.TrimSpace(fields[0]),
		Name:         strings.TrimSpace(fields[1]),
		Serial:       strings.TrimSpace(fields[2]),
		Address:      address,
	}, nil
}
