package metrics

import (
	"context"
	"sync"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/event"
)

var sessionStates = []domain.SessionState{
	domain.SessionStateConnecting,
	domain.SessionStateSubscribed,
	domain.SessionStateStreaming,
	domain.SessionStateClosed,
}

// Observer records pipeline events as Prometheus metrics.
type Observer struct {
	chain string

	mu          sync.Mutex
	latestBlock uint64
}

func NewObserver(chain string) *Observer {
	return &Observer{chain: chain}
}

func (o *Observer) Observe(_ context.Context, ev event.Event) {
	switch ev.Kind {
	case event.KindConnected:
		SessionsStarted.WithLabelValues(o.chain).Inc()
		o.setState(domain.SessionStateConnecting)
	case event.KindSubscribed:
		o.setState(domain.SessionStateSubscribed)
	case event.KindStreaming:
		o.setState(domain.SessionStateStreaming)
	case event.KindMessageSkipped:
		MessagesSkipped.WithLabelValues(o.chain, ev.MessageKind.String()).Inc()
	case event.KindDecodeRejected:
		field := ev.Field
		if field == "" {
			field = "unknown"
		}
		DecodeRejected.WithLabelValues(o.chain, field).Inc()
	case event.KindRecordWritten:
		RecordsWritten.WithLabelValues(o.chain).Inc()
		WriteLatency.WithLabelValues(o.chain).Observe(ev.Duration.Seconds())
		if ev.Transfer != nil {
			o.advance(ev.Transfer.BlockNumber)
		}
	case event.KindWriteFailed:
		WriteFailures.WithLabelValues(o.chain).Inc()
	case event.KindSessionClosed:
		o.setState(domain.SessionStateClosed)
		SessionDuration.WithLabelValues(o.chain).Observe(ev.Duration.Seconds())
	case event.KindReconnectScheduled:
		Reconnects.WithLabelValues(o.chain).Inc()
	}
}

func (o *Observer) setState(current domain.SessionState) {
	for _, s := range sessionStates {
		v := 0.0
		if s == current {
			v = 1
		}
		SessionState.WithLabelValues(o.chain, string(s)).Set(v)
	}
}

// Events arrive in delivery order, not block order; the gauge never moves back.
func (o *Observer) advance(block uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if block <= o.latestBlock {
		return
	}
	o.latestBlock = block
	LatestBlock.WithLabelValues(o.chain).Set(float64(block))
}
