package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/infra/storage"
	"github.com/vietddude/tokenstream/internal/ingest/sink"
)

// ErrSinkClosed is returned when appending through a closed handle.
var ErrSinkClosed = errors.New("sink closed")

type eventKey struct {
	chain, txHash, blockHash string
	logIndex                 uint64
}

// MemoryStorage keeps transfers in process memory. It is used when no
// database URL is configured.
type MemoryStorage struct {
	transfers []*domain.Transfer
	seen      map[eventKey]struct{}
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		seen: make(map[eventKey]struct{}),
	}
}

// Open returns a new handle onto the shared storage.
func (m *MemoryStorage) Open(ctx context.Context) (sink.Sink, error) {
	return &Sink{store: m}, nil
}

// Transfers returns a copy of everything appended so far, in append order.
func (m *MemoryStorage) Transfers() []*domain.Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// Summaries implements storage.TransferReader.
func (m *MemoryStorage) Summaries(ctx context.Context) ([]storage.TokenSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index := make(map[[2]string]int)
	var out []storage.TokenSummary
	for _, t := range m.transfers {
		k := [2]string{t.Chain, t.Token}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, storage.TokenSummary{Chain: t.Chain, Token: t.Token})
		}
		s := &out[i]
		s.Transfers++
		if int64(t.BlockNumber) > s.LatestBlock {
			s.LatestBlock = int64(t.BlockNumber)
		}
		if t.IngestedAt.After(s.LastIngested) {
			s.LastIngested = t.IngestedAt
		}
	}
	return out, nil
}

// DeleteTransfersOlderThan implements storage.TransferPruner.
func (m *MemoryStorage) DeleteTransfersOlderThan(ctx context.Context, chain string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.transfers[:0]
	var deleted int64
	for _, t := range m.transfers {
		if t.Chain == chain && t.IngestedAt.Before(before) {
			delete(m.seen, keyOf(t))
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	clear(m.transfers[len(kept):])
	m.transfers = kept
	return deleted, nil
}

func keyOf(t *domain.Transfer) eventKey {
	return eventKey{chain: t.Chain, txHash: t.TxHash, blockHash: t.BlockHash, logIndex: t.LogIndex}
}

// Sink is one session's handle.
type Sink struct {
	store  *MemoryStorage
	mu     sync.Mutex
	closed bool
}

// Append stores t unless the same log was already stored.
func (s *Sink) Append(ctx context.Context, t *domain.Transfer) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	key := keyOf(t)
	if _, dup := s.store.seen[key]; dup {
		return nil
	}
	s.store.seen[key] = struct{}{}
	s.store.transfers = append(s.store.transfers, t)
	return nil
}

// Close marks the handle closed.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
