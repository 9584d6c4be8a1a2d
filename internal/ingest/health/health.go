// Package health tracks ingestion session health and serves it over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StreamHealth contains health details for one chain's subscription stream.
type StreamHealth struct {
	ChainID             string       `json:"chain_id"`
	Status              SystemStatus `json:"status"`
	SessionID           string       `json:"session_id,omitempty"`
	SessionState        string       `json:"session_state"`
	Attempt             int          `json:"attempt"`
	SubscriptionID      string       `json:"subscription_id,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	WriteFailureStreak  int          `json:"write_failure_streak"`
	RecordsWritten      uint64       `json:"records_written"`
	Rejected            uint64       `json:"rejected"`
	LastMessageAt       *time.Time   `json:"last_message_at,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Streams      map[string]StreamHealth `json:"streams"`
}
