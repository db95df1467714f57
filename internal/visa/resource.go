package visa

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Resource is one open instrument handle.
type Resource interface {
	WriteLine(ctx context.Context, line string) error
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// OpenOptions mirror the knobs a VISA open call takes.
type OpenOptions struct {
	ReadTermination  string
	WriteTermination string
	Encoding         string
	// ReadTimeout bounds one ReadLine. Zero waits until the context ends.
	ReadTimeout time.Duration
	// MaxLineBytes caps one raw response line, terminator included.
	MaxLineBytes int
}

// DefaultMaxLineBytes fits the largest ASCII block transfers seen from
// scopes and loggers.
const DefaultMaxLineBytes = 4 << 20

func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		ReadTermination:  "\n",
		WriteTermination: "\n",
		Encoding:         "latin1",
		MaxLineBytes:     DefaultMaxLineBytes,
	}
}

func (o OpenOptions) withDefaults() OpenOptions {
	def := DefaultOpenOptions()
	if o.ReadTermination == "" {
		o.ReadTermination = def.ReadTermination
	}
	if o.WriteTermination == "" {
		o.WriteTermination = def.WriteTermination
	}
	if strings.TrimSpace(o.Encoding) == "" {
		o.Encoding = def.Encoding
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = def.MaxLineBytes
	}
	return o
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return charmap.ISO8859_1, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, nil
	case "ascii", "utf-8", "utf8":
		return encoding.Nop, nil
	default:
		return nil, fmt.Errorf("visa: unsupported encoding %q", name)
	}
}

// lineResource frames SCPI lines over any byte stream.
type lineResource struct {
	address string
	rw      io.ReadWriteCloser
	r       *bufio.Reader
	opts    OpenOptions
	enc     encoding.Encoding

	// setReadDeadline is nil for streams without deadline support.
	setReadDeadline func(time.Time) error
	// pollEOF treats io.EOF as "no data yet"; serial ports with an
	// inter-character timeout report idle reads that way.
	pollEOF bool

	closed atomic.Bool
}

func newLineResource(address string, rw io.ReadWriteCloser, opts OpenOptions) (*lineResource, error) {
	opts = opts.withDefaults()
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	return &lineResource{
		address: address,
		rw:      rw,
		r:       bufio.NewReader(rw),
		opts:    opts,
		enc:     enc,
	}, nil
}

func (r *lineResource) WriteLine(ctx context.Context, line string) error {
	if r.closed.Load() {
		return ioError("write", r.address, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return ioError("write", r.address, err)
	}
	payload, err := r.enc.NewEncoder().String(line + r.opts.WriteTermination)
	if err != nil {
		return ioError("write", r.address, err)
	}
	if _, err := io.WriteString(r.rw, payload); err != nil {
		return ioError("write", r.address, err)
	}
	return nil
}

func (r *lineResource) ReadLine(ctx context.Context) (string, error) {
	if r.closed.Load() {
		return "", ioError("read", r.address, ErrClosed)
	}
	deadline := r.readDeadline(ctx)
	if r.setReadDeadline != nil {
		if err := r.setReadDeadline(deadline); err != nil {
			return "", ioError("read", r.address, err)
		}
		stop := context.AfterFunc(ctx, func() {
			_ = r.setReadDeadline(time.Now())
		})
		defer stop()
	}

	term := []byte(r.opts.ReadTermination)
	var buf []byte
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			expired := !deadline.IsZero() && !time.Now().Before(deadline)
			switch {
			case ctx.Err() != nil:
				return "", ioError("read", r.address, ctx.Err())
			case errors.Is(err, os.ErrDeadlineExceeded):
				return "", ioError("read", r.address, ErrTimeout)
			case r.pollEOF && errors.Is(err, io.EOF) && !expired:
				continue
			case r.pollEOF && errors.Is(err, io.EOF):
				return "", ioError("read", r.address, ErrTimeout)
			default:
				return "", ioError("read", r.address, err)
			}
		}
		buf = append(buf, b)
		if bytes.HasSuffix(buf, term) {
			buf = buf[:len(buf)-len(term)]
			break
		}
		if len(buf) >= r.opts.MaxLineBytes {
			return "", ioError("read", r.address, fmt.Errorf("%w: over %d bytes", ErrLineTooLong, r.opts.MaxLineBytes))
		}
	}
	text, err := r.enc.NewDecoder().Bytes(buf)
	if err != nil {
		return "", ioError("read", r.address, err)
	}
	return strings.TrimRight(string(text), "\r"), nil
}

// readDeadline is the earlier of the configured read timeout and the context
// deadline; zero means unbounded.
func (r *lineResource) readDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if r.opts.ReadTimeout > 0 {
		deadline = time.Now().Add(r.opts.ReadTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func (r *lineResource) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if err := r.rw.Close(); err != nil {
		return ioError("close", r.address, err)
	}
	return nil
}
