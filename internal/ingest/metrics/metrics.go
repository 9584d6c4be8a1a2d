package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted tracks channel connections established per chain
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_sessions_started_total",
			Help: "Total number of subscription sessions that connected",
		},
		[]string{"chain"},
	)

	// SessionState is 1 for the state the current session is in, 0 otherwise
	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenstream_session_state",
			Help: "Current session state (1 for the active state)",
		},
		[]string{"chain", "state"},
	)

	// SessionDuration tracks how long sessions stay open
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenstream_session_duration_seconds",
			Help:    "Session lifetime in seconds",
			Buckets: []float64{1, 10, 60, 300, 1800, 3600, 21600, 86400},
		},
		[]string{"chain"},
	)

	// Reconnects tracks reconnect attempts scheduled by the supervisor
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_reconnects_total",
			Help: "Total number of reconnects scheduled",
		},
		[]string{"chain"},
	)

	// MessagesSkipped tracks frames that were neither acks nor data events
	MessagesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_messages_skipped_total",
			Help: "Total number of inbound messages skipped",
		},
		[]string{"chain", "kind"},
	)

	// DecodeRejected tracks data events rejected by the decoder
	DecodeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_decode_rejected_total",
			Help: "Total number of events rejected during decoding",
		},
		[]string{"chain", "field"},
	)

	// RecordsWritten tracks transfers appended to the sink
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_records_written_total",
			Help: "Total number of transfer records written",
		},
		[]string{"chain"},
	)

	// WriteFailures tracks transfers the sink refused
	WriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenstream_write_failures_total",
			Help: "Total number of transfer writes that failed",
		},
		[]string{"chain"},
	)

	// WriteLatency tracks sink append latency
	WriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenstream_write_latency_seconds",
			Help:    "Sink append latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// LatestBlock tracks the highest block number written
	LatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokenstream_latest_block",
			Help: "Highest block number of a written transfer",
		},
		[]string{"chain"},
	)
)
