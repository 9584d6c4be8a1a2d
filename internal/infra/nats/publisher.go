// Package nats publishes written transfers and lifecycle events to NATS.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/event"
)

// Config holds NATS client configuration.
type Config struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Name    string `yaml:"name"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an event.Observer that forwards events to NATS.
// Publishing is fire-and-forget; the client buffers while reconnecting.
type Publisher struct {
	nc      *nats.Conn
	conn    conn
	subject string
	log     *slog.Logger
}

// Connect dials the server and returns a publisher.
func Connect(cfg Config, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "tokenstream"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newPublisher(nc, cfg.Subject, log)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, log *slog.Logger) *Publisher {
	if subject == "" {
		subject = "tokenstream"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{conn: c, subject: subject, log: log}
}

// TransferSubject is where written transfers for chain are published.
func (p *Publisher) TransferSubject(chain string) string {
	return p.subject + ".transfers." + chain
}

// EventSubject is where lifecycle events are published.
func (p *Publisher) EventSubject() string {
	return p.subject + ".events"
}

type lifecycleMessage struct {
	Kind           string              `json:"kind"`
	SessionID      string              `json:"session_id,omitempty"`
	Attempt        int                 `json:"attempt,omitempty"`
	State          domain.SessionState `json:"state,omitempty"`
	SubscriptionID string              `json:"subscription_id,omitempty"`
	MessageKind    string              `json:"message_kind,omitempty"`
	Field          string              `json:"field,omitempty"`
	Error          string              `json:"error,omitempty"`
	DelayMS        int64               `json:"delay_ms,omitempty"`
	At             time.Time           `json:"at"`
}

func (p *Publisher) Observe(ctx context.Context, ev event.Event) {
	if ev.Kind == event.KindRecordWritten {
		p.publish(p.TransferSubject(ev.Transfer.Chain), ev.Transfer)
		return
	}

	msg := lifecycleMessage{
		Kind:           string(ev.Kind),
		SessionID:      ev.SessionID,
		Attempt:        ev.Attempt,
		State:          ev.State,
		SubscriptionID: ev.SubscriptionID,
		Field:          ev.Field,
		DelayMS:        ev.Delay.Milliseconds(),
		At:             ev.Time,
	}
	if ev.Kind == event.KindMessageSkipped {
		msg.MessageKind = ev.MessageKind.String()
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	p.publish(p.EventSubject(), msg)
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Warn("Failed to marshal NATS message", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("Failed to publish NATS message", "subject", subject, "error", err)
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
