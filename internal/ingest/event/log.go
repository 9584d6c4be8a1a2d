package event

import (
	"context"
	"log/slog"
	"time"
)

// LogObserver writes every event to a structured logger.
type LogObserver struct {
	log *slog.Logger
}

// NewLogObserver creates a log observer. A nil logger uses slog.Default().
func NewLogObserver(log *slog.Logger) *LogObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) Observe(ctx context.Context, ev Event) {
	attrs := []any{"session_id", ev.SessionID}
	if ev.Attempt > 0 {
		attrs = append(attrs, "attempt", ev.Attempt)
	}

	switch ev.Kind {
	case KindConnected:
		o.log.InfoContext(ctx, "Connected to subscription channel", attrs...)
	case KindSubscribed:
		o.log.InfoContext(ctx, "Subscription request sent", attrs...)
	case KindAcknowledged:
		attrs = append(attrs, "subscription", ev.SubscriptionID,
			"started_at", ev.Time.UTC().Format(time.DateTime))
		o.log.InfoContext(ctx, "Started ingesting data", attrs...)
	case KindStreaming:
		o.log.InfoContext(ctx, "Streaming", attrs...)
	case KindMessageSkipped:
		attrs = append(attrs, "kind", ev.MessageKind.String(), "message", truncate(ev.Raw))
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		o.log.WarnContext(ctx, "Missing expected data in message", attrs...)
	case KindDecodeRejected:
		attrs = append(attrs, "field", ev.Field, "error", ev.Err, "message", truncate(ev.Raw))
		o.log.WarnContext(ctx, "Rejected event", attrs...)
	case KindRecordWritten:
		t := ev.Transfer
		attrs = append(attrs, "block", t.BlockNumber, "tx", t.TxHash, "log_index", t.LogIndex,
			"duration", ev.Duration)
		o.log.DebugContext(ctx, "Transfer written", attrs...)
	case KindWriteFailed:
		t := ev.Transfer
		attrs = append(attrs, "block", t.BlockNumber, "tx", t.TxHash, "log_index", t.LogIndex,
			"error", ev.Err)
		o.log.ErrorContext(ctx, "Error inserting transfer", attrs...)
	case KindSessionClosed:
		attrs = append(attrs, "state", string(ev.State), "duration", ev.Duration)
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
			o.log.ErrorContext(ctx, "Session closed", attrs...)
			return
		}
		o.log.InfoContext(ctx, "Session closed", attrs...)
	case KindReconnectScheduled:
		attrs = append(attrs, "delay", ev.Delay)
		o.log.InfoContext(ctx, "Reconnecting", attrs...)
	default:
		o.log.DebugContext(ctx, "Unknown event", append(attrs, "kind", string(ev.Kind))...)
	}
}

const maxLoggedMessage = 512

func truncate(raw []byte) string {
	if len(raw) > maxLoggedMessage {
		return string(raw[:maxLoggedMessage]) + "..."
	}
	return string(raw)
}
