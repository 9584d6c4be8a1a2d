// Package supervisor keeps a subscription session alive until shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/tokenstream/internal/ingest/event"
)

// Runner is a single session. Run returns when the session ends.
type Runner interface {
	Run(ctx context.Context) error
}

// NewSessionFunc builds the session for the given attempt (1-indexed).
type NewSessionFunc func(attempt int) Runner

// Supervisor runs sessions back to back with a fixed delay in between.
type Supervisor struct {
	newSession NewSessionFunc
	backoff    Backoff
	observer   event.Observer
	log        *slog.Logger

	// after is swapped in tests.
	after func(time.Duration) (<-chan time.Time, func() bool)
}

// New creates a supervisor. A nil backoff waits DefaultDelay.
func New(newSession NewSessionFunc, backoff Backoff, observer event.Observer, log *slog.Logger) *Supervisor {
	if backoff == nil {
		backoff = FixedBackoff{}
	}
	if observer == nil {
		observer = event.Nop
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		newSession: newSession,
		backoff:    backoff,
		observer:   observer,
		log:        log,
		after: func(d time.Duration) (<-chan time.Time, func() bool) {
			t := time.NewTimer(d)
			return t.C, t.Stop
		},
	}
}

// Run loops until ctx is cancelled. Session errors never end the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		err := s.newSession(attempt).Run(ctx)
		if ctx.Err() != nil {
			s.log.Info("Supervisor stopped", "attempts", attempt)
			return nil
		}

		delay := s.backoff.Delay(attempt)
		s.observer.Observe(ctx, event.Event{
			Kind:    event.KindReconnectScheduled,
			Time:    time.Now(),
			Attempt: attempt,
			Delay:   delay,
			Err:     err,
		})

		wait, stop := s.after(delay)
		select {
		case <-ctx.Done():
			stop()
			s.log.Info("Supervisor stopped", "attempts", attempt)
			return nil
		case <-wait:
		}
	}
}
