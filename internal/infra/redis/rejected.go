package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RejectedEntry summarises a message that produced no stored record. The
// ledger is for operators; nothing replays it.
type RejectedEntry struct {
	Kind        string    `json:"kind"`
	SessionID   string    `json:"session_id"`
	Field       string    `json:"field,omitempty"`
	Error       string    `json:"error"`
	TxHash      string    `json:"tx_hash,omitempty"`
	LogIndex    uint64    `json:"log_index,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// PushRejected prepends e to the chain's ledger and trims it to limit entries.
func (c *Client) PushRejected(ctx context.Context, chain string, e RejectedEntry, limit int) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal rejected entry: %w", err)
	}

	key := rejectedKey(chain)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		if limit > 0 {
			pipe.LTrim(ctx, key, 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push rejected entry: %w", err)
	}
	return nil
}

// ListRejected returns up to n of the most recent entries, newest first.
func (c *Client) ListRejected(ctx context.Context, chain string, n int) ([]RejectedEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := c.rdb.LRange(ctx, rejectedKey(chain), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	entries := make([]RejectedEntry, 0, len(raw))
	for _, r := range raw {
		var e RejectedEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountRejected returns the ledger length.
func (c *Client) CountRejected(ctx context.Context, chain string) (int64, error) {
	return c.rdb.LLen(ctx, rejectedKey(chain)).Result()
}
