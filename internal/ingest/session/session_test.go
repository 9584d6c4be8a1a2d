package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/event"
	"github.com/vietddude/tokenstream/internal/ingest/sink"
)

// =============================================================================
// Fakes
// =============================================================================

var errChannelClosed = errors.New("websocket: close 1000 (normal)")

type fakeChannel struct {
	mu     sync.Mutex
	msgs   [][]byte
	err    error // returned once msgs are drained; nil blocks until ctx ends
	sent   []any
	closed bool
}

func (c *fakeChannel) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.msgs) > 0 {
		m := c.msgs[0]
		c.msgs = c.msgs[1:]
		c.mu.Unlock()
		return m, nil
	}
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type recordingSink struct {
	mu       sync.Mutex
	appended []*domain.Transfer
	calls    int
	failOn   map[int]error // 1-based call number
	closed   bool
}

func (s *recordingSink) Append(ctx context.Context, t *domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.failOn[s.calls]; err != nil {
		return err
	}
	s.appended = append(s.appended, t)
	return nil
}

func (s *recordingSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) Observe(_ context.Context, ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []event.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Kind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) last() event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

const ackMsg = `{"jsonrpc":"2.0","id":"tokenstream","result":"0xsub1"}`

func transferMsg(block int, logIndex int) []byte {
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub1","result":{
		"address":"0x68749665ff8d2d112fa859aa293f07a622782f38",
		"topics":["%s","0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","0x000000000000000000000000bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"],
		"data":"0x3e8","blockNumber":"0x%x","transactionHash":"0xtx%d","logIndex":"0x%x","blockHash":"0xblock%d"}}}`,
		domain.TransferTopic, block, block, logIndex, block))
}

func newTestSession(ch *fakeChannel, snk *recordingSink, obs event.Observer) *Session {
	return New(Config{
		ID:        "test-session",
		Attempt:   1,
		Chain:     domain.ChainEthereum,
		RequestID: "tokenstream",
		Filter:    Filter{Address: "0x68749665ff8d2d112fa859aa293f07a622782f38", Topics: []string{domain.TransferTopic}},
	},
		DialerFunc(func(ctx context.Context) (Channel, error) { return ch, nil }),
		sink.FactoryFunc(func(ctx context.Context) (sink.Sink, error) { return snk, nil }),
		obs,
	)
}

// =============================================================================
// Tests
// =============================================================================

func TestSession_ProcessesInArrivalOrder(t *testing.T) {
	ch := &fakeChannel{
		msgs: [][]byte{[]byte(ackMsg), transferMsg(10, 0), transferMsg(11, 1)},
		err:  errChannelClosed,
	}
	snk := &recordingSink{}
	events := &eventLog{}
	s := newTestSession(ch, snk, events)

	err := s.Run(context.Background())

	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "receive" || !errors.Is(err, errChannelClosed) {
		t.Fatalf("expected receive transport error, got %v", err)
	}
	if len(snk.appended) != 2 {
		t.Fatalf("expected 2 records, got %d", len(snk.appended))
	}
	if snk.appended[0].BlockNumber != 10 || snk.appended[1].BlockNumber != 11 {
		t.Errorf("records out of order: %d, %d", snk.appended[0].BlockNumber, snk.appended[1].BlockNumber)
	}
	if s.State() != domain.SessionStateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if s.SubscriptionID() != "0xsub1" {
		t.Errorf("expected subscription id 0xsub1, got %q", s.SubscriptionID())
	}
	if !ch.closed || !snk.closed {
		t.Errorf("channel and sink must be released (channel=%v sink=%v)", ch.closed, snk.closed)
	}

	want := []event.Kind{
		event.KindConnected,
		event.KindSubscribed,
		event.KindStreaming,
		event.KindAcknowledged,
		event.KindRecordWritten,
		event.KindRecordWritten,
		event.KindSessionClosed,
	}
	got := events.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("unexpected events:\n got  %v\n want %v", got, want)
	}
	if closed := events.last(); closed.State != domain.SessionStateStreaming || closed.Err == nil {
		t.Errorf("close event should report reached state and cause, got %+v", closed)
	}
}

func TestSession_SendsSubscribeRequest(t *testing.T) {
	ch := &fakeChannel{err: errChannelClosed}
	s := newTestSession(ch, &recordingSink{}, nil)
	_ = s.Run(context.Background())

	if len(ch.sent) != 1 {
		t.Fatalf("expected exactly one subscribe request, got %d", len(ch.sent))
	}
	b, err := json.Marshal(ch.sent[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":"tokenstream","method":"eth_subscribe","params":["logs",{"address":"0x68749665ff8d2d112fa859aa293f07a622782f38","topics":["` + domain.TransferTopic + `"]}]}`
	if string(b) != want {
		t.Errorf("unexpected request:\n got  %s\n want %s", b, want)
	}
}

func TestSession_WriteFailureDoesNotStopStream(t *testing.T) {
	ch := &fakeChannel{
		msgs: [][]byte{transferMsg(20, 0), transferMsg(21, 0)},
		err:  errChannelClosed,
	}
	snk := &recordingSink{failOn: map[int]error{1: errors.New("insert rejected")}}
	events := &eventLog{}

	err := newTestSession(ch, snk, events).Run(context.Background())

	if !errors.Is(err, errChannelClosed) {
		t.Fatalf("session must end only on channel closure, got %v", err)
	}
	if snk.calls != 2 {
		t.Errorf("writer must be invoked for both records, got %d", snk.calls)
	}
	if len(snk.appended) != 1 || snk.appended[0].BlockNumber != 21 {
		t.Errorf("expected only block 21 stored, got %+v", snk.appended)
	}

	var failed, written int
	for _, ev := range events.events {
		switch ev.Kind {
		case event.KindWriteFailed:
			failed++
			var werr *sink.WriteError
			if !errors.As(ev.Err, &werr) {
				t.Errorf("write failure should carry *sink.WriteError, got %T", ev.Err)
			}
		case event.KindRecordWritten:
			written++
		}
	}
	if failed != 1 || written != 1 {
		t.Errorf("expected 1 failed and 1 written, got %d and %d", failed, written)
	}
}

func TestSession_BadMessagesAreSkipped(t *testing.T) {
	ch := &fakeChannel{
		msgs: [][]byte{
			[]byte("not json"),
			[]byte(`{"jsonrpc":"2.0","id":"x","error":{"code":-32000,"message":"limit exceeded"}}`),
			[]byte(`{"hello":"world"}`),
			[]byte(`{"method":"eth_subscription","params":{"result":{"topics":[]}}}`),
			transferMsg(30, 4),
		},
		err: errChannelClosed,
	}
	snk := &recordingSink{}
	events := &eventLog{}

	_ = newTestSession(ch, snk, events).Run(context.Background())

	if len(snk.appended) != 1 || snk.appended[0].LogIndex != 4 {
		t.Fatalf("expected the valid transfer to be stored, got %+v", snk.appended)
	}

	var fields []string
	skipped := 0
	for _, ev := range events.events {
		switch ev.Kind {
		case event.KindDecodeRejected:
			fields = append(fields, ev.Field)
		case event.KindMessageSkipped:
			skipped++
		}
	}
	if fmt.Sprint(fields) != "[envelope topics[1]]" {
		t.Errorf("unexpected rejected fields %v", fields)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped messages, got %d", skipped)
	}
}

func TestSession_SinkOpenFailure(t *testing.T) {
	dialed := false
	s := New(Config{Chain: domain.ChainEthereum},
		DialerFunc(func(ctx context.Context) (Channel, error) {
			dialed = true
			return &fakeChannel{}, nil
		}),
		sink.FactoryFunc(func(ctx context.Context) (sink.Sink, error) {
			return nil, errors.New("password authentication failed")
		}),
		nil,
	)

	err := s.Run(context.Background())
	var serr *SinkOpenError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SinkOpenError, got %v", err)
	}
	if dialed {
		t.Errorf("channel must not be dialed without a sink")
	}
	if s.ID() == "" {
		t.Errorf("session id should be generated")
	}
}

func TestSession_DialFailureReleasesSink(t *testing.T) {
	snk := &recordingSink{}
	s := New(Config{},
		DialerFunc(func(ctx context.Context) (Channel, error) { return nil, errors.New("connection refused") }),
		sink.FactoryFunc(func(ctx context.Context) (sink.Sink, error) { return snk, nil }),
		nil,
	)

	err := s.Run(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "dial" {
		t.Fatalf("expected dial transport error, got %v", err)
	}
	if !snk.closed {
		t.Errorf("sink must be closed on dial failure")
	}
}

func TestSession_CancelInterruptsReceive(t *testing.T) {
	ch := &fakeChannel{msgs: [][]byte{[]byte(ackMsg)}}
	snk := &recordingSink{}
	s := newTestSession(ch, snk, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancellation")
	}
	if !ch.closed || !snk.closed {
		t.Errorf("resources must be released on cancellation")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{domain.SessionStateConnecting, domain.SessionStateSubscribed, true},
		{domain.SessionStateSubscribed, domain.SessionStateStreaming, true},
		{domain.SessionStateStreaming, domain.SessionStateClosed, true},
		{domain.SessionStateConnecting, domain.SessionStateStreaming, false},
		{domain.SessionStateClosed, domain.SessionStateConnecting, false},
		{domain.SessionStateStreaming, domain.SessionStateSubscribed, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}
