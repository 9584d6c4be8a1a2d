// Package session runs a single subscription connection from dial to close.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/decoder"
	"github.com/vietddude/tokenstream/internal/ingest/event"
	"github.com/vietddude/tokenstream/internal/ingest/sink"
)

const closeTimeout = 5 * time.Second

// Config holds per-session settings.
type Config struct {
	ID        string
	Attempt   int
	Chain     string
	RequestID string
	Filter    Filter
	Logger    *slog.Logger
	Now       func() time.Time
}

// Session owns one channel connection and one sink handle. It is not reusable.
type Session struct {
	cfg      Config
	dialer   Dialer
	sinks    sink.Factory
	observer event.Observer
	decoder  *decoder.Decoder
	log      *slog.Logger

	mu             sync.Mutex
	state          State
	subscriptionID string
}

// New creates a session in the connecting state.
func New(cfg Config, dialer Dialer, sinks sink.Factory, observer event.Observer) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if observer == nil {
		observer = event.Nop
	}
	return &Session{
		cfg:      cfg,
		dialer:   dialer,
		sinks:    sinks,
		observer: observer,
		decoder:  decoder.New(cfg.Chain, cfg.Now),
		log:      cfg.Logger.With("session_id", cfg.ID),
		state:    domain.SessionStateConnecting,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.ID }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubscriptionID returns the id acknowledged by the endpoint, if any.
func (s *Session) SubscriptionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionID
}

// Run opens the sink, dials, subscribes and dispatches messages in delivery
// order until the channel fails or ctx is cancelled. It always returns a
// non-nil error: ctx.Err() on cancellation, otherwise a *SinkOpenError or
// *TransportError.
func (s *Session) Run(ctx context.Context) (err error) {
	started := s.cfg.Now()
	defer func() {
		reached := s.State()
		s.transition(domain.SessionStateClosed)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		s.emit(context.WithoutCancel(ctx), event.Event{
			Kind:     event.KindSessionClosed,
			State:    reached,
			Duration: s.cfg.Now().Sub(started),
			Err:      err,
		})
	}()

	snk, err := s.sinks.Open(ctx)
	if err != nil {
		return &SinkOpenError{Err: err}
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := snk.Close(closeCtx); cerr != nil {
			s.log.Warn("Failed to close sink", "error", cerr)
		}
	}()

	ch, err := s.dialer.Dial(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			s.log.Debug("Channel close", "error", cerr)
		}
	}()
	s.emit(ctx, event.Event{Kind: event.KindConnected})

	if err := ch.Send(ctx, SubscribeLogs(s.cfg.RequestID, s.cfg.Filter)); err != nil {
		return &TransportError{Op: "subscribe", Err: err}
	}
	s.transition(domain.SessionStateSubscribed)
	s.emit(ctx, event.Event{Kind: event.KindSubscribed})

	w := sink.NewWriter(snk)
	for {
		raw, err := ch.Receive(ctx)
		if err != nil {
			return &TransportError{Op: "receive", Err: err}
		}
		if s.State() == domain.SessionStateSubscribed {
			s.transition(domain.SessionStateStreaming)
			s.emit(ctx, event.Event{Kind: event.KindStreaming})
		}
		s.dispatch(ctx, w, raw)
	}
}

func (s *Session) dispatch(ctx context.Context, w *sink.Writer, raw []byte) {
	msg, err := s.decoder.Decode(raw)
	if err != nil {
		ev := event.Event{Kind: event.KindDecodeRejected, Err: err, Raw: raw}
		var rej *decoder.RejectError
		if errors.As(err, &rej) {
			ev.Field = rej.Field
		}
		s.emit(ctx, ev)
		return
	}

	switch msg.Kind {
	case domain.KindDataEvent:
		start := time.Now()
		if err := w.Write(ctx, msg.Transfer); err != nil {
			s.emit(ctx, event.Event{Kind: event.KindWriteFailed, Transfer: msg.Transfer, Err: err})
			return
		}
		s.emit(ctx, event.Event{
			Kind:     event.KindRecordWritten,
			Transfer: msg.Transfer,
			Duration: time.Since(start),
		})
	case domain.KindAck:
		s.mu.Lock()
		s.subscriptionID = msg.SubscriptionID
		s.mu.Unlock()
		s.emit(ctx, event.Event{Kind: event.KindAcknowledged, SubscriptionID: msg.SubscriptionID})
	case domain.KindRPCError:
		s.emit(ctx, event.Event{
			Kind:        event.KindMessageSkipped,
			MessageKind: msg.Kind,
			Err:         msg.RPCError,
			Raw:         raw,
		})
	case domain.KindUnrecognized:
		s.emit(ctx, event.Event{Kind: event.KindMessageSkipped, MessageKind: msg.Kind, Raw: raw})
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == to {
		return
	}
	if !CanTransition(s.state, to) {
		s.log.Warn("Invalid session transition", "from", s.state, "to", to)
		return
	}
	s.log.Debug("Session transition", "from", s.state, "to", to, "state", StateDescription(to))
	s.state = to
}

func (s *Session) emit(ctx context.Context, ev event.Event) {
	ev.Time = s.cfg.Now()
	ev.SessionID = s.cfg.ID
	ev.Attempt = s.cfg.Attempt
	if ev.State == "" {
		ev.State = s.State()
	}
	s.observer.Observe(ctx, ev)
}
