package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/scpibridge/internal/dispatch"
	"github.com/danmuck/scpibridge/internal/instrument"
	"github.com/danmuck/scpibridge/internal/observability"
	"github.com/danmuck/scpibridge/internal/protocol/frame"
	"github.com/danmuck/scpibridge/internal/protocol/session"
	"github.com/danmuck/scpibridge/internal/visa"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrLifecycleOrder = errors.New("hub: invalid session loop transition")
	ErrLoopRunning    = errors.New("hub: session loop already running")
)

// Phase is the session loop state.
type Phase string

const (
	PhaseListening  Phase = "listening"
	PhaseAnnouncing Phase = "announcing"
	PhaseServing    Phase = "serving"
	PhaseTerminated Phase = "terminated"
)

var allowedTransitions = map[Phase][]Phase{
	PhaseListening:  {PhaseAnnouncing, PhaseTerminated},
	PhaseAnnouncing: {PhaseServing, PhaseListening, PhaseTerminated},
	PhaseServing:    {PhaseListening, PhaseTerminated},
}

// Session outcomes as recorded in metrics.
const (
	OutcomeClosed   = "closed"
	OutcomeError    = "error"
	OutcomeShutdown = "shutdown"
)

// ErrorReplyPrefix starts every error text sent in place of a query reply.
const ErrorReplyPrefix = "An exception occured: "

// LoopConfig configures session timing and dispatch policy.
type LoopConfig struct {
	Session           session.Config
	Timing            dispatch.Timing
	ValidateAddresses bool
}

// SessionStatus is a point-in-time view of the loop.
type SessionStatus struct {
	Phase       Phase               `json:"phase"`
	SessionID   string              `json:"session_id,omitempty"`
	Peer        string              `json:"peer,omitempty"`
	Instruments []instrument.Record `json:"instruments"`
	Commands    uint64              `json:"commands"`
	Sessions    uint64              `json:"sessions"`
	Since       time.Time           `json:"since"`
}

// Loop accepts and serves operator sessions strictly one at a time.
type Loop struct {
	rm         visa.ResourceManager
	cfg        LoopConfig
	dispatcher *dispatch.Dispatcher

	running atomic.Bool
	bound   atomic.Bool

	mu        sync.RWMutex
	phase     Phase
	sessionID string
	peer      string
	directory instrument.Directory
	commands  uint64
	sessions  uint64
	since     time.Time
}

func NewLoop(rm visa.ResourceManager, cfg LoopConfig) *Loop {
	cfg.Session = cfg.Session.WithDefaults()
	return &Loop{
		rm:         rm,
		cfg:        cfg,
		dispatcher: dispatch.New(rm, cfg.Timing),
		phase:      PhaseListening,
		since:      time.Now(),
	}
}

// Run serves sessions from ln until ctx ends, then closes ln and returns nil.
// Accept failures other than shutdown are retried with backoff.
func (l *Loop) Run(ctx context.Context, ln net.Listener) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)
	l.reset()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	l.bound.Store(true)
	defer l.bound.Store(false)
	log.Info().Str("addr", ln.Addr().String()).Msg("hub.Loop.Run listening")

	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.terminate()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				l.terminate()
				return fmt.Errorf("hub: listener closed: %w", err)
			}
			attempt++
			log.Warn().Err(err).Int("attempt", attempt).Msg("hub.Loop.Run accept failed")
			if err := session.WaitBackoff(ctx, l.cfg.Session.Backoff, attempt, nil); err != nil {
				l.terminate()
				return nil
			}
			continue
		}
		attempt = 0

		outcome := l.serveSession(ctx, conn)
		observability.RecordSession(outcome)
		if ctx.Err() != nil {
			l.terminate()
			return nil
		}
		if err := l.transition(PhaseListening); err != nil {
			log.Error().Err(err).Msg("hub.Loop.Run reset")
		}
	}
}

// Status returns a copy of the current loop state.
func (l *Loop) Status() SessionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return SessionStatus{
		Phase:       l.phase,
		SessionID:   l.sessionID,
		Peer:        l.peer,
		Instruments: l.directory.Records(),
		Commands:    l.commands,
		Sessions:    l.sessions,
		Since:       l.since,
	}
}

// Ready reports whether the loop holds a bound listener.
func (l *Loop) Ready() bool {
	return l.bound.Load()
}

// serveSession runs one connection through announcing and serving. It never
// panics and always closes conn.
func (l *Loop) serveSession(ctx context.Context, raw net.Conn) (outcome string) {
	id := uuid.NewString()
	peer := raw.RemoteAddr().String()
	conn := session.NewConn(raw, l.cfg.Session)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	logger := log.With().Str("session_id", id).Str("peer", peer).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("hub.Loop.serveSession recovered")
			outcome = OutcomeError
		}
		logger.Info().Str("outcome", outcome).Msg("connection closed")
	}()

	if err := l.beginSession(id, peer); err != nil {
		logger.Error().Err(err).Msg("hub.Loop.serveSession")
		return OutcomeError
	}
	logger.Info().Msg("connection established")

	dir, err := instrument.Enumerate(ctx, l.rm)
	if err != nil {
		logger.Warn().Err(err).Msg("hub.Loop.serveSession enumerate failed")
		return l.endOutcome(ctx, err)
	}
	l.setDirectory(dir)
	observability.SetDirectorySize(dir.Len())

	if err := conn.SendDirectory(wireDirectory(dir)); err != nil {
		logger.Warn().Err(err).Msg("hub.Loop.serveSession announce failed")
		return l.endOutcome(ctx, err)
	}
	if err := l.transition(PhaseServing); err != nil {
		logger.Error().Err(err).Msg("hub.Loop.serveSession")
		return OutcomeError
	}
	logger.Info().Int("instruments", dir.Len()).Msg("directory announced")

	d := l.dispatcher.ForSession(dir, peer, l.cfg.ValidateAddresses)
	for {
		messageID, cmd, err := conn.ReadCommand()
		if err != nil {
			return l.endOutcome(ctx, err)
		}
		result := d.Dispatch(ctx, dispatch.Envelope{Address: cmd.Address, Command: cmd.Command})
		l.countCommand()
		if result.Class != dispatch.Query {
			continue
		}
		reply := replyFor(result)
		err = conn.SendReply(messageID, reply)
		if errors.Is(err, frame.ErrPayloadTooLarge) {
			logger.Warn().Str("to", cmd.Address).Int("reply_bytes", len(reply.Text)).Msg("hub.Loop.serveSession reply too large")
			err = conn.SendReply(messageID, oversizedReply(len(reply.Text)))
		}
		if err != nil {
			return l.endOutcome(ctx, err)
		}
	}
}

func (l *Loop) endOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return OutcomeShutdown
	case errors.Is(err, io.EOF):
		return OutcomeClosed
	default:
		log.Debug().Err(err).Msg("hub.Loop session error")
		return OutcomeError
	}
}

func (l *Loop) beginSession(id, peer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transitionLocked(PhaseAnnouncing); err != nil {
		return err
	}
	l.sessionID = id
	l.peer = peer
	l.directory = instrument.Directory{}
	l.commands = 0
	l.sessions++
	return nil
}

func (l *Loop) setDirectory(dir instrument.Directory) {
	l.mu.Lock()
	l.directory = dir
	l.mu.Unlock()
}

func (l *Loop) countCommand() {
	l.mu.Lock()
	l.commands++
	l.mu.Unlock()
}

func (l *Loop) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = PhaseListening
	l.since = time.Now()
}

func (l *Loop) terminate() {
	if err := l.transition(PhaseTerminated); err != nil {
		log.Debug().Err(err).Msg("hub.Loop.terminate")
	}
	log.Info().Msg("hub.Loop.Run shutdown")
}

func (l *Loop) transition(to Phase) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitionLocked(to)
}

func (l *Loop) transitionLocked(to Phase) error {
	for _, next := range allowedTransitions[l.phase] {
		if next == to {
			l.phase = to
			l.since = time.Now()
			if to == PhaseListening || to == PhaseTerminated {
				l.sessionID = ""
				l.peer = ""
				l.directory = instrument.Directory{}
			}
			return nil
		}
	}
	return transitionError(l.phase, to)
}

func transitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrLifecycleOrder, from, to)
}

// replyFor maps a query result onto the wire reply.
func replyFor(result dispatch.Result) session.Reply {
	if result.Err != nil {
		return session.Reply{Text: ErrorReplyPrefix + result.Err.Error(), IsError: true}
	}
	return session.Reply{Text: result.Reply}
}

// oversizedReply replaces a query reply that does not fit in one frame. The
// oversized frame is rejected before any byte is written, so the stream stays
// usable.
func oversizedReply(size int) session.Reply {
	limit := frame.DefaultLimits().MaxPayloadBytes
	return session.Reply{
		Text:    fmt.Sprintf("%sreply of %d bytes exceeds the %d byte frame limit", ErrorReplyPrefix, size, limit),
		IsError: true,
	}
}

func wireDirectory(dir instrument.Directory) []session.Instrument {
	records := dir.Records()
	out := make([]session.Instrument, 0, len(records))
	for _, rec := range records {
		out = append(out, session.Instrument{
			Name:         rec.Name,
			Manufacturer: rec.Manufacturer,
			Serial:       rec.Serial,
			Address:      rec.Address,
		})
	}
	return out
}
