// Package ws implements the subscription channel over a JSON-RPC websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultReadLimit        = 32 * 1024 * 1024
)

// ErrClosed is returned by Receive when the endpoint closed the connection normally.
var ErrClosed = errors.New("channel closed")

// Config holds websocket connection settings.
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval enables keepalive pings. The connection is considered
	// stalled when nothing arrives within PingInterval+PongTimeout.
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadLimit    int64
}

// Dialer opens websocket connections to one endpoint.
type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewDialer creates a dialer with defaults applied.
func NewDialer(cfg Config) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

type handshakeError struct {
	err    error
	status string
}

func (e handshakeError) Error() string {
	s := e.err.Error()
	if e.status != "" {
		s += " (HTTP status " + e.status + ")"
	}
	return s
}

func (e handshakeError) Unwrap() error { return e.err }

// Dial connects to the endpoint. The connection is closed when ctx ends,
// which unblocks a pending Receive.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	wc, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, d.cfg.Header)
	if err != nil {
		hErr := handshakeError{err: err}
		if resp != nil {
			hErr.status = resp.Status
		}
		return nil, fmt.Errorf("dial %s: %w", Redact(d.cfg.URL), hErr)
	}
	wc.SetReadLimit(d.cfg.ReadLimit)

	c := &Conn{
		wc:   wc,
		cfg:  d.cfg,
		done: make(chan struct{}),
	}
	if d.cfg.PingInterval > 0 {
		c.extendDeadline()
		wc.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
		c.wg.Add(1)
		go c.pingLoop()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
			_ = c.wc.Close()
		case <-c.done:
		}
	}()

	return c, nil
}

// Conn is one websocket connection. Receive must be called from a single
// goroutine; Send and Close are safe to call concurrently with it.
type Conn struct {
	wc  *websocket.Conn
	cfg Config

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Send writes v as a JSON text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.wc.SetWriteDeadline(deadline)
	if err := c.wc.WriteJSON(v); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive blocks for the next data frame.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.wc.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	if c.cfg.PingInterval > 0 {
		c.extendDeadline()
	}
	return data, nil
}

// Close sends a close frame and releases the connection. It is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.wc.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.wc.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Conn) extendDeadline() {
	_ = c.wc.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.wc.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Redact strips credentials, path and query from an endpoint URL so it can be logged.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host
}
