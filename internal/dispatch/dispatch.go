package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/scpibridge/internal/instrument"
	"github.com/danmuck/scpibridge/internal/observability"
	"github.com/danmuck/scpibridge/internal/visa"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownAddress = errors.New("dispatch: address not in session directory")
	ErrEmptyCommand   = errors.New("dispatch: empty command")
)

// Class is the protocol-level command type.
type Class string

const (
	Query Class = "query"
	Set   Class = "set"
)

// Classify returns Query iff command contains '?'.
func Classify(command string) Class {
	if strings.Contains(command, "?") {
		return Query
	}
	return Set
}

// Timing holds the fixed pacing delays and the bounded read.
type Timing struct {
	QuerySettle  time.Duration
	SetPreDelay  time.Duration
	SetPostDelay time.Duration
	// ReadTimeout bounds the query read; expiry is an instrument error.
	// Zero reads until the context ends.
	ReadTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		QuerySettle:  10 * time.Second,
		SetPreDelay:  2 * time.Second,
		SetPostDelay: 2 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

// Envelope is one command addressed to one instrument.
type Envelope struct {
	Address string
	Command string
}

// Result is the outcome of one dispatch. Reply is only set for a successful
// Query; Err carries any failure for either class.
type Result struct {
	Class    Class
	Reply    string
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Dispatcher runs envelopes sequentially against a shared resource manager.
type Dispatcher struct {
	rm     visa.ResourceManager
	timing Timing

	// allowed is nil when address validation is off.
	allowed *instrument.Directory
	peer    string
}

func New(rm visa.ResourceManager, timing Timing) *Dispatcher {
	return &Dispatcher{rm: rm, timing: timing}
}

// ForSession returns a dispatcher bound to one session's peer and, when
// validate is set, restricted to the addresses in dir.
func (d *Dispatcher) ForSession(dir instrument.Directory, peer string, validate bool) *Dispatcher {
	out := &Dispatcher{rm: d.rm, timing: d.timing, peer: peer}
	if validate {
		out.allowed = &dir
	}
	return out
}

// Dispatch classifies and executes env. It never returns a Go error; all
// failures are reported on Result.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) Result {
	start := time.Now()
	class := Classify(env.Command)
	result := Result{Class: class}

	switch {
	case strings.TrimSpace(env.Command) == "":
		result.Err = ErrEmptyCommand
	case d.allowed != nil && !d.allowed.Contains(env.Address):
		result.Err = fmt.Errorf("%w: %q", ErrUnknownAddress, env.Address)
	case class == Query:
		result.Reply, result.Err = d.query(ctx, env)
	default:
		result.Err = d.set(ctx, env)
	}
	result.Duration = time.Since(start)

	observability.RecordDispatch(string(class), result.OK(), result.Duration)
	d.logResult(env, result)
	return result
}

func (d *Dispatcher) query(ctx context.Context, env Envelope) (string, error) {
	res, err := d.rm.Open(ctx, env.Address, d.openOptions())
	if err != nil {
		return "", err
	}
	defer closeResource(res, env.Address)

	if err := res.WriteLine(ctx, env.Command); err != nil {
		return "", err
	}
	if err := sleep(ctx, d.timing.QuerySettle); err != nil {
		return "", err
	}
	return res.ReadLine(ctx)
}

func (d *Dispatcher) set(ctx context.Context, env Envelope) error {
	if err := sleep(ctx, d.timing.SetPreDelay); err != nil {
		return err
	}
	res, err := d.rm.Open(ctx, env.Address, d.openOptions())
	if err != nil {
		return err
	}
	defer closeResource(res, env.Address)

	if err := res.WriteLine(ctx, env.Command); err != nil {
		return err
	}
	return sleep(ctx, d.timing.SetPostDelay)
}

func (d *Dispatcher) openOptions() visa.OpenOptions {
	opts := visa.DefaultOpenOptions()
	opts.ReadTimeout = d.timing.ReadTimeout
	return opts
}

func (d *Dispatcher) logResult(env Envelope, result Result) {
	event := log.Info()
	if result.Err != nil {
		event = log.Warn().Err(result.Err)
	}
	event = event.
		Str("from", d.peer).
		Str("to", env.Address).
		Str("class", string(result.Class)).
		Str("command", env.Command).
		Dur("duration", result.Duration)
	if result.Class == Query && result.Err == nil {
		event = event.Str("reply", clipReply(result.Reply)).Int("reply_bytes", len(result.Reply))
	}
	event.Msg("dispatch.Dispatcher.Dispatch")
}

// maxLoggedReply bounds the reply text copied into a log line.
const maxLoggedReply = 256

func clipReply(reply string) string {
	if len(reply) <= maxLoggedReply {
		return reply
	}
	return reply[:maxLoggedReply] + "..."
}

// closeResource closes res and logs a failure; the operation result stands.
func closeResource(res visa.Resource, address string) {
	if err := res.Close(); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("dispatch close failed")
	}
}

// sleep waits d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
