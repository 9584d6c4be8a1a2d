package postgres

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/sink"
)

const insertTransfer = `
	INSERT INTO token_transfers (
		blockchain, from_address, to_address, token_address, raw_amount,
		transaction_hash, event_index, block_timestamp, block_number, block_hash
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT ON CONSTRAINT token_transfers_event_uniq DO NOTHING
`

// SinkFactory opens one dedicated connection per session.
type SinkFactory struct {
	url string

	mu       sync.Mutex
	migrate  func(context.Context) error
	migrated bool
}

// NewSinkFactory creates a factory for the given connection URL.
func NewSinkFactory(url string) *SinkFactory {
	return &SinkFactory{url: url}
}

// WithMigrations makes the first successful Open apply db's migrations.
// A failed migration fails that Open and is retried by the next one.
func (f *SinkFactory) WithMigrations(db *DB) *SinkFactory {
	f.migrate = db.Migrate
	return f
}

func (f *SinkFactory) ensureMigrated(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.migrate == nil || f.migrated {
		return nil
	}
	if err := f.migrate(ctx); err != nil {
		return err
	}
	f.migrated = true
	return nil
}

// Open connects and verifies the connection.
func (f *SinkFactory) Open(ctx context.Context) (sink.Sink, error) {
	if err := f.ensureMigrated(ctx); err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &TransferSink{conn: conn}, nil
}

// TransferSink appends transfers on a single connection. Each insert runs in
// autocommit mode, so a nil error means the row is durable.
type TransferSink struct {
	conn *pgx.Conn
}

// Append inserts one transfer. Re-deliveries of the same log are ignored.
func (s *TransferSink) Append(ctx context.Context, t *domain.Transfer) error {
	args, err := transferArgs(t)
	if err != nil {
		return err
	}
	if _, err := s.conn.Exec(ctx, insertTransfer, args...); err != nil {
		return fmt.Errorf("failed to save transfer: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *TransferSink) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func transferArgs(t *domain.Transfer) ([]any, error) {
	if t.RawAmount == nil || t.RawAmount.Sign() < 0 {
		return nil, fmt.Errorf("invalid raw amount %v", t.RawAmount)
	}
	logIndex, err := toInt8(t.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("event_index: %w", err)
	}
	blockNumber, err := toInt8(t.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("block_number: %w", err)
	}

	return []any{
		t.Chain,
		t.From,
		t.To,
		t.Token,
		pgtype.Numeric{Int: t.RawAmount, Exp: 0, Valid: true},
		t.TxHash,
		logIndex,
		t.IngestedAt,
		blockNumber,
		t.BlockHash,
	}, nil
}

func toInt8(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows bigint", v)
	}
	return int64(v), nil
}
