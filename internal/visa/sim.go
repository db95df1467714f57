package visa

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SimulatedInstrument describes an in-process instrument. Set commands of
// the form "HEADER VALUE" are remembered and answered by "HEADER?".
type SimulatedInstrument struct {
	Address   string
	IDN       string
	Responses map[string]string
	// Latency delays every reply; reads shorter than it time out.
	Latency time.Duration
}

type simInstrument struct {
	spec SimulatedInstrument

	mu    sync.Mutex
	state map[string]string
}

func newSimInstrument(spec SimulatedInstrument) *simInstrument {
	return &simInstrument{spec: spec, state: make(map[string]string)}
}

// respond returns the reply for a query and whether one exists.
func (s *simInstrument) respond(command string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(strings.TrimSpace(command))
	if key == "*IDN?" && s.spec.IDN != "" {
		return s.spec.IDN, true
	}
	for k, v := range s.spec.Responses {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v, true
		}
	}
	if v, ok := s.state[strings.TrimSuffix(key, "?")]; ok {
		return v, true
	}
	return "", false
}

func (s *simInstrument) apply(command string) {
	header, value, ok := strings.Cut(strings.TrimSpace(command), " ")
	if !ok {
		return
	}
	s.mu.Lock()
	s.state[strings.ToUpper(header)] = strings.TrimSpace(value)
	s.mu.Unlock()
}

// simOpener opens SIM:: resources registered with the manager.
type simOpener struct {
	lookup func(address string) (*simInstrument, bool)
}

func (o simOpener) Open(_ context.Context, addr Address, opts OpenOptions) (Resource, error) {
	inst, ok := o.lookup(addr.Raw)
	if !ok {
		return nil, ErrResourceNotFound
	}
	return &simResource{address: addr.Raw, inst: inst, opts: opts.withDefaults()}, nil
}

type simResource struct {
	address string
	inst    *simInstrument
	opts    OpenOptions

	mu      sync.Mutex
	pending []string
	closed  bool
}

func (r *simResource) WriteLine(ctx context.Context, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ioError("write", r.address, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return ioError("write", r.address, err)
	}
	if strings.Contains(line, "?") {
		if reply, ok := r.inst.respond(line); ok {
			r.pending = append(r.pending, reply)
		}
		return nil
	}
	r.inst.apply(line)
	return nil
}

func (r *simResource) ReadLine(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ioError("read", r.address, ErrClosed)
	}
	var reply string
	ok := len(r.pending) > 0
	if ok {
		reply = r.pending[0]
		r.pending = r.pending[1:]
	}
	r.mu.Unlock()

	wait := r.inst.spec.Latency
	if !ok {
		// Nothing queued: behave like a silent instrument.
		wait = r.opts.ReadTimeout
		if wait <= 0 {
			<-ctx.Done()
			return "", ioError("read", r.address, ctx.Err())
		}
	}
	if r.opts.ReadTimeout > 0 && wait > r.opts.ReadTimeout {
		wait = r.opts.ReadTimeout
		ok = false
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ioError("read", r.address, ctx.Err())
	case <-timer.C:
	}
	if !ok {
		return "", ioError("read", r.address, ErrTimeout)
	}
	return reply, nil
}

func (r *simResource) Close() error {
	r.mu.Lock()
	r.closed = true
	r.pending = nil
	r.mu.Unlock()
	return nil
}
