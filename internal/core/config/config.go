package config

import (
	"time"

	natsclient "github.com/vietddude/tokenstream/internal/infra/nats"
	redisclient "github.com/vietddude/tokenstream/internal/infra/redis"
	"github.com/vietddude/tokenstream/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Chain    ChainConfig        `yaml:"chain"`
	Stream   StreamConfig       `yaml:"stream"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	NATS     natsclient.Config  `yaml:"nats"`
	Health   HealthConfig       `yaml:"health"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig identifies the chain stamped on every ingested transfer.
type ChainConfig struct {
	ID              string        `yaml:"id"`
	RetentionPeriod time.Duration `yaml:"retention_period"` // 0 = infinite
}

// StreamConfig holds the subscription endpoint and connection settings.
type StreamConfig struct {
	URL              string        `yaml:"url"`
	RequestID        string        `yaml:"request_id"`
	Filter           FilterConfig  `yaml:"filter"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`  // 0 disables keepalive
	PongTimeout      time.Duration `yaml:"pong_timeout"`
}

// FilterConfig selects the logs to subscribe to.
type FilterConfig struct {
	Address string `yaml:"address"`
	Topic   string `yaml:"topic"`
}

// HealthConfig holds health reporting thresholds.
type HealthConfig struct {
	MaxFailures int `yaml:"max_failures"`
}
