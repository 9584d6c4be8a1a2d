package redis

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/tokenstream/internal/ingest/event"
)

const (
	observeTimeout     = 2 * time.Second
	drainTimeout       = 2 * time.Second
	defaultRejectedMax = 1000
	defaultQueueSize   = 1024
	maxStoredMessage   = 1024
)

// ProgressObserver mirrors ingestion progress and dropped messages into Redis.
// Observe only enqueues; a single worker performs the Redis calls in order.
// When the queue is full the event is dropped and counted.
type ProgressObserver struct {
	client      *Client
	chain       string
	ttl         time.Duration
	rejectedMax int
	log         *slog.Logger

	queue     chan event.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	dropped   atomic.Uint64
}

// NewProgressObserver creates an observer for one chain and starts its
// worker. Close stops it.
func NewProgressObserver(client *Client, chain string, cfg Config, log *slog.Logger) *ProgressObserver {
	if cfg.RejectedMax <= 0 {
		cfg.RejectedMax = defaultRejectedMax
	}
	if log == nil {
		log = slog.Default()
	}
	o := &ProgressObserver{
		client:      client,
		chain:       chain,
		ttl:         cfg.ProgressTTL,
		rejectedMax: cfg.RejectedMax,
		log:         log,
		queue:       make(chan event.Event, defaultQueueSize),
		done:        make(chan struct{}),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

func (o *ProgressObserver) Observe(_ context.Context, ev event.Event) {
	switch ev.Kind {
	case event.KindRecordWritten, event.KindDecodeRejected, event.KindWriteFailed:
	default:
		return
	}

	// Raw belongs to the caller.
	if len(ev.Raw) > 0 {
		ev.Raw = append([]byte(nil), ev.Raw[:min(len(ev.Raw), maxStoredMessage)]...)
	}

	select {
	case <-o.done:
		return
	default:
	}
	select {
	case o.queue <- ev:
	default:
		if n := o.dropped.Add(1); n == 1 || n%1000 == 0 {
			o.log.Warn("Redis progress queue full, dropping events", "dropped", n)
		}
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (o *ProgressObserver) Dropped() uint64 {
	return o.dropped.Load()
}

// Close stops the worker after flushing queued events for at most
// drainTimeout. It is idempotent.
func (o *ProgressObserver) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
		o.wg.Wait()
	})
}

func (o *ProgressObserver) run() {
	defer o.wg.Done()
	ctx := context.Background()

	for {
		select {
		case ev := <-o.queue:
			o.handle(ctx, ev)
		case <-o.done:
			drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
			defer cancel()
			for {
				select {
				case ev := <-o.queue:
					o.handle(drainCtx, ev)
				default:
					return
				}
			}
		}
	}
}

func (o *ProgressObserver) handle(ctx context.Context, ev event.Event) {
	ctx, cancel := context.WithTimeout(ctx, observeTimeout)
	defer cancel()

	if ev.Kind == event.KindRecordWritten {
		t := ev.Transfer
		if _, err := o.client.AdvanceProgress(ctx, t.Chain, t.Token, t.BlockNumber, o.ttl); err != nil {
			o.log.Warn("Failed to record progress", "error", err)
		}
		return
	}

	entry := RejectedEntry{
		Kind:      string(ev.Kind),
		SessionID: ev.SessionID,
		Field:     ev.Field,
		At:        ev.Time,
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	if t := ev.Transfer; t != nil {
		entry.TxHash = t.TxHash
		entry.LogIndex = t.LogIndex
		entry.BlockNumber = t.BlockNumber
	}
	if len(ev.Raw) > 0 {
		entry.Message = string(ev.Raw)
	}
	if err := o.client.PushRejected(ctx, o.chain, entry, o.rejectedMax); err != nil {
		o.log.Warn("Failed to record rejected message", "error", err)
	}
}
