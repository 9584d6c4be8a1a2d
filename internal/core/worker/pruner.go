package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/tokenstream/internal/infra/storage"
)

// Pruner deletes transfers older than the retention period.
type Pruner struct {
	chain     string
	retention time.Duration
	store     storage.TransferPruner
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(chain string, retention time.Duration, store storage.TransferPruner, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		chain:     chain,
		retention: retention,
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// Interval is how often Start prunes: 10% of retention, clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.DeleteTransfersOlderThan(ctx, p.chain, cutoff)
	if err != nil {
		p.log.Error("Failed to prune transfers", "chain", p.chain, "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned transfers", "chain", p.chain, "deleted", n, "before", cutoff)
	}
}
