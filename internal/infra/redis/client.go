package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for ingestion progress tracking.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL         string        `yaml:"url"`
	Password    string        `yaml:"password"`
	ProgressTTL time.Duration `yaml:"progress_ttl"` // 0 = keep forever
	RejectedMax int           `yaml:"rejected_max"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func progressKey(chain, token string) string {
	return fmt.Sprintf("tokenstream:progress:%s:%s", chain, strings.ToLower(token))
}

func rejectedKey(chain string) string {
	return fmt.Sprintf("tokenstream:rejected:%s", chain)
}

// advanceScript sets the watermark only when it moves forward.
var advanceScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// AdvanceProgress records block as the latest ingested block for the token
// unless a higher block is already recorded. It reports whether it moved.
func (c *Client) AdvanceProgress(
	ctx context.Context,
	chain, token string,
	block uint64,
	ttl time.Duration,
) (bool, error) {
	moved, err := advanceScript.Run(ctx, c.rdb,
		[]string{progressKey(chain, token)},
		strconv.FormatUint(block, 10), ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("advance progress failed: %w", err)
	}
	return moved == 1, nil
}

// GetProgress returns the latest ingested block for the token.
func (c *Client) GetProgress(ctx context.Context, chain, token string) (uint64, bool, error) {
	val, err := c.rdb.Get(ctx, progressKey(chain, token)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get failed: %w", err)
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid progress value %q: %w", val, err)
	}
	return block, true, nil
}
