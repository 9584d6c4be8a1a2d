package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/tokenstream/internal/infra/storage"
)

// TransferRepo implements storage.TransferReader and storage.TransferPruner
// using PostgreSQL.
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new PostgreSQL transfer repository.
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

// Summaries returns per chain/token ingestion totals.
func (r *TransferRepo) Summaries(ctx context.Context) ([]storage.TokenSummary, error) {
	query := `
		SELECT blockchain, token_address,
		       COUNT(*)             AS transfers,
		       MAX(block_number)    AS latest_block,
		       MAX(block_timestamp) AS last_ingested
		FROM token_transfers
		GROUP BY blockchain, token_address
		ORDER BY blockchain, token_address
	`

	var rows []storage.TokenSummary
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to summarize transfers: %w", err)
	}
	return rows, nil
}

// DeleteTransfersOlderThan removes transfers ingested before the cutoff.
func (r *TransferRepo) DeleteTransfersOlderThan(ctx context.Context, chain string, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM token_transfers WHERE blockchain = $1 AND block_timestamp < $2",
		chain, before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transfers: %w", err)
	}
	return res.RowsAffected()
}
