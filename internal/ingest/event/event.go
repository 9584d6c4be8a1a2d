// Package event carries pipeline lifecycle notifications to observers.
package event

import (
	"context"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
)

// Kind identifies a lifecycle notification.
type Kind string

const (
	KindConnected          Kind = "connected"
	KindSubscribed         Kind = "subscribed"
	KindAcknowledged       Kind = "acknowledged"
	KindStreaming          Kind = "streaming"
	KindMessageSkipped     Kind = "message_skipped"
	KindDecodeRejected     Kind = "decode_rejected"
	KindRecordWritten      Kind = "record_written"
	KindWriteFailed        Kind = "write_failed"
	KindSessionClosed      Kind = "session_closed"
	KindReconnectScheduled Kind = "reconnect_scheduled"
)

// Event is a single notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind           Kind
	Time           time.Time
	SessionID      string
	Attempt        int
	State          domain.SessionState
	SubscriptionID string
	MessageKind    domain.MessageKind
	Field          string
	Transfer       *domain.Transfer
	Raw            []byte
	Delay          time.Duration
	Duration       time.Duration
	Err            error
}

// Observer receives events synchronously from the session goroutine.
// Implementations must not retain Raw past the call.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Multi fans an event out to every observer in order.
type Multi []Observer

func (m Multi) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// Nop discards events.
var Nop Observer = ObserverFunc(func(context.Context, Event) {})
