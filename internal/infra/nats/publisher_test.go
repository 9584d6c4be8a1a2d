package nats

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/vietddude/tokenstream/internal/core/domain"
	"github.com/vietddude/tokenstream/internal/ingest/event"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func TestPublisher_Transfer(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "ingest", nil)

	amount, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	tr := &domain.Transfer{Chain: "ethereum", TxHash: "0xtx", RawAmount: amount, BlockNumber: 9}
	p.Observe(context.Background(), event.Event{Kind: event.KindRecordWritten, Transfer: tr})

	if len(fc.msgs) != 1 || fc.msgs[0].subject != "ingest.transfers.ethereum" {
		t.Fatalf("unexpected messages %+v", fc.msgs)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(fc.msgs[0].data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(got["raw_amount"]) != "340282366920938463463374607431768211456" {
		t.Errorf("amount must be published with full precision, got %s", got["raw_amount"])
	}
	if string(got["transaction_hash"]) != `"0xtx"` {
		t.Errorf("unexpected tx hash %s", got["transaction_hash"])
	}
}

func TestPublisher_Lifecycle(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "", nil)

	p.Observe(context.Background(), event.Event{
		Kind:    event.KindReconnectScheduled,
		Attempt: 3,
		Delay:   5 * time.Second,
		Err:     errors.New("read: i/o timeout"),
	})
	p.Observe(context.Background(), event.Event{
		Kind:        event.KindMessageSkipped,
		MessageKind: domain.KindRPCError,
	})

	if len(fc.msgs) != 2 || fc.msgs[0].subject != "tokenstream.events" {
		t.Fatalf("unexpected messages %+v", fc.msgs)
	}
	var first lifecycleMessage
	if err := json.Unmarshal(fc.msgs[0].data, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Kind != "reconnect_scheduled" || first.Attempt != 3 || first.DelayMS != 5000 || first.Error != "read: i/o timeout" {
		t.Errorf("unexpected lifecycle message %+v", first)
	}
	var second lifecycleMessage
	_ = json.Unmarshal(fc.msgs[1].data, &second)
	if second.MessageKind != "rpc_error" {
		t.Errorf("expected rpc_error message kind, got %q", second.MessageKind)
	}
}

func TestPublisher_PublishErrorIsSwallowed(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "x", nil)
	p.Observe(context.Background(), event.Event{Kind: event.KindConnected})
	if err := p.Close(); err != nil {
		t.Errorf("close without connection should be a no-op, got %v", err)
	}
}
