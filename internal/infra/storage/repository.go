package storage

import (
	"context"
	"time"
)

// TokenSummary is the ingestion total for one chain/token pair.
type TokenSummary struct {
	Chain        string    `db:"blockchain"`
	Token        string    `db:"token_address"`
	Transfers    int64     `db:"transfers"`
	LatestBlock  int64     `db:"latest_block"`
	LastIngested time.Time `db:"last_ingested"`
}

// TransferReader is the read side of the transfer store.
type TransferReader interface {
	// Summaries returns one row per chain/token pair.
	Summaries(ctx context.Context) ([]TokenSummary, error)
}

// TransferPruner deletes transfers that fell out of the retention window.
type TransferPruner interface {
	DeleteTransfersOlderThan(ctx context.Context, chain string, before time.Time) (int64, error)
}
