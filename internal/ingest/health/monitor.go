package health

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/event"
)

// DefaultMaxFailures is how many sessions in a row may fail before the
// stream is reported critical.
const DefaultMaxFailures = 3

// Monitor is an event.Observer that derives stream health from session events.
type Monitor struct {
	chain       string
	maxFailures int

	mu    sync.RWMutex
	state StreamHealth
}

// NewMonitor creates a new health monitor for chain.
func NewMonitor(chain string, maxFailures int) *Monitor {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Monitor{
		chain:       chain,
		maxFailures: maxFailures,
		state: StreamHealth{
			ChainID:      chain,
			SessionState: string(domain.SessionStateClosed),
		},
	}
}

func (m *Monitor) Observe(_ context.Context, ev event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	if ev.SessionID != "" {
		s.SessionID = ev.SessionID
		s.Attempt = ev.Attempt
	}

	switch ev.Kind {
	case event.KindConnected, event.KindSubscribed:
		s.SessionState = string(ev.State)
	case event.KindStreaming:
		// Data can arrive before or without an ack.
		s.SessionState = string(ev.State)
		s.ConsecutiveFailures = 0
		s.LastError = ""
	case event.KindAcknowledged:
		s.SubscriptionID = ev.SubscriptionID
		s.ConsecutiveFailures = 0
		s.LastError = ""
	case event.KindRecordWritten:
		s.RecordsWritten++
		s.WriteFailureStreak = 0
		s.ConsecutiveFailures = 0
	case event.KindWriteFailed:
		s.WriteFailureStreak++
		s.LastError = errString(ev.Err)
	case event.KindDecodeRejected:
		s.Rejected++
	case event.KindSessionClosed:
		s.SessionState = string(domain.SessionStateClosed)
		s.SubscriptionID = ""
		if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) {
			s.ConsecutiveFailures++
			s.LastError = ev.Err.Error()
		}
	}

	switch ev.Kind {
	case event.KindStreaming, event.KindAcknowledged, event.KindMessageSkipped,
		event.KindDecodeRejected, event.KindRecordWritten, event.KindWriteFailed:
		at := ev.Time
		s.LastMessageAt = &at
	}
}

// CheckHealth returns the current health of every monitored stream.
func (m *Monitor) CheckHealth(_ context.Context) map[string]StreamHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.state
	if h.LastMessageAt != nil {
		at := *h.LastMessageAt
		h.LastMessageAt = &at
	}

	switch {
	case h.ConsecutiveFailures >= m.maxFailures:
		h.Status = StatusCritical
	case h.SessionState != string(domain.SessionStateStreaming),
		h.ConsecutiveFailures > 0,
		h.WriteFailureStreak > 0:
		h.Status = StatusDegraded
	default:
		h.Status = StatusHealthy
	}

	return map[string]StreamHealth{m.chain: h}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
