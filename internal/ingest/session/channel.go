package session

import (
	"context"
	"fmt"
)

// Channel is one live connection to the subscription endpoint.
// Receive blocks until a message arrives or the connection ends; closure is
// reported as an error, never as a message.
type Channel interface {
	Send(ctx context.Context, v any) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context) (Channel, error) { return f(ctx) }

// Filter selects the logs to subscribe to.
type Filter struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

// Request is the JSON-RPC subscribe request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// SubscribeLogs builds an eth_subscribe("logs", filter) request.
func SubscribeLogs(id string, f Filter) Request {
	return Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "eth_subscribe",
		Params:  []any{"logs", f},
	}
}

// TransportError is a channel-level failure. The supervisor reconnects on it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SinkOpenError means the session could not acquire its sink handle.
type SinkOpenError struct {
	Err error
}

func (e *SinkOpenError) Error() string {
	return fmt.Sprintf("open sink: %v", e.Err)
}

func (e *SinkOpenError) Unwrap() error { return e.Err }
