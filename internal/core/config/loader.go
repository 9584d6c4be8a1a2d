package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Chain.ID == "" {
		c.Chain.ID = domain.ChainEthereum
	}
	if c.Stream.RequestID == "" {
		c.Stream.RequestID = "tokenstream"
	}
	if c.Stream.Filter.Topic == "" {
		c.Stream.Filter.Topic = domain.TransferTopic
	}
	if c.Stream.ReconnectDelay == 0 {
		c.Stream.ReconnectDelay = 5 * time.Second
	}
	if c.Stream.HandshakeTimeout == 0 {
		c.Stream.HandshakeTimeout = 10 * time.Second
	}
	if c.Stream.WriteTimeout == 0 {
		c.Stream.WriteTimeout = 10 * time.Second
	}
	if c.Stream.PingInterval > 0 && c.Stream.PongTimeout == 0 {
		c.Stream.PongTimeout = 30 * time.Second
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "tokenstream"
	}
	if c.Health.MaxFailures == 0 {
		c.Health.MaxFailures = 3
	}
}

// Validate reports every missing or malformed required setting.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Stream.URL == "" {
		errs = append(errs, errors.New("stream.url is required"))
	} else if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		errs = append(errs, errors.New("stream.url must use ws:// or wss://"))
	}
	if c.Stream.Filter.Address == "" {
		errs = append(errs, errors.New("stream.filter.address is required"))
	}
	if c.Stream.ReconnectDelay < 0 {
		errs = append(errs, errors.New("stream.reconnect_delay must not be negative"))
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}
