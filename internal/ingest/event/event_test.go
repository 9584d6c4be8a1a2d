package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/vietddude/tokenstream/internal/core/domain"
)

func TestMulti_FansOutInOrder(t *testing.T) {
	var got []string
	rec := func(name string) Observer {
		return ObserverFunc(func(_ context.Context, ev Event) {
			got = append(got, name+":"+string(ev.Kind))
		})
	}

	m := Multi{rec("a"), nil, rec("b")}
	m.Observe(context.Background(), Event{Kind: KindConnected})

	if strings.Join(got, ",") != "a:connected,b:connected" {
		t.Errorf("unexpected fan-out order: %v", got)
	}
}

func TestLogObserver_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	o := NewLogObserver(log)
	ctx := context.Background()
	tr := &domain.Transfer{BlockNumber: 7, TxHash: "0xabc", RawAmount: big.NewInt(1)}

	o.Observe(ctx, Event{Kind: KindRecordWritten, SessionID: "s1", Transfer: tr})
	if buf.Len() != 0 {
		t.Errorf("record writes log at debug, got %q", buf.String())
	}

	o.Observe(ctx, Event{Kind: KindWriteFailed, SessionID: "s1", Transfer: tr, Err: errors.New("boom")})
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "boom") || !strings.Contains(out, "block=7") {
		t.Errorf("unexpected write failure log: %q", out)
	}

	buf.Reset()
	o.Observe(ctx, Event{Kind: KindMessageSkipped, Raw: bytes.Repeat([]byte("x"), 2000)})
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "...") {
		t.Errorf("skipped messages should warn with a truncated payload: %q", buf.String())
	}
}
