// Package sink isolates single-record writes to the destination store.
package sink

import (
	"context"
	"fmt"

	"github.com/vietddude/tokenstream/internal/core/domain"
)

// Sink appends transfers to a store. Append must commit before returning nil.
type Sink interface {
	Append(ctx context.Context, t *domain.Transfer) error
	Close(ctx context.Context) error
}

// Factory opens a sink handle owned by exactly one session.
type Factory interface {
	Open(ctx context.Context) (Sink, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context) (Sink, error)

func (f FactoryFunc) Open(ctx context.Context) (Sink, error) { return f(ctx) }

// WriteError reports a failed append of one record.
type WriteError struct {
	TxHash   string
	LogIndex uint64
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write transfer %s#%d: %v", e.TxHash, e.LogIndex, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer issues exactly one append per call. It never batches or retries.
type Writer struct {
	sink Sink
}

// NewWriter wraps s.
func NewWriter(s Sink) *Writer {
	return &Writer{sink: s}
}

// Write appends t. A non-nil error is always a *WriteError and leaves the
// writer usable for the next record.
func (w *Writer) Write(ctx context.Context, t *domain.Transfer) error {
	if err := w.sink.Append(ctx, t); err != nil {
		return &WriteError{TxHash: t.TxHash, LogIndex: t.LogIndex, Err: err}
	}
	return nil
}
