package postgres

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vietddude/tokenstream/internal/core/domain"
)

func TestTransferArgs_ColumnOrder(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := &domain.Transfer{
		Chain:       "ethereum",
		From:        "0xfrom",
		To:          "0xto",
		Token:       "0xtoken",
		RawAmount:   amount,
		TxHash:      "0xtx",
		LogIndex:    7,
		IngestedAt:  at,
		BlockNumber: 19000000,
		BlockHash:   "0xblock",
	}

	args, err := transferArgs(tr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}

	strs := []struct {
		i    int
		want string
	}{{0, "ethereum"}, {1, "0xfrom"}, {2, "0xto"}, {3, "0xtoken"}, {5, "0xtx"}, {9, "0xblock"}}
	for _, s := range strs {
		if args[s.i] != s.want {
			t.Errorf("arg %d: expected %s, got %v", s.i, s.want, args[s.i])
		}
	}

	num, ok := args[4].(pgtype.Numeric)
	if !ok || !num.Valid || num.Exp != 0 || num.Int.Cmp(amount) != 0 {
		t.Errorf("unexpected amount arg %#v", args[4])
	}
	if args[6] != int64(7) || args[8] != int64(19000000) {
		t.Errorf("unexpected integer args %v %v", args[6], args[8])
	}
	if ts, ok := args[7].(time.Time); !ok || !ts.Equal(at) {
		t.Errorf("unexpected timestamp arg %v", args[7])
	}
}

func TestTransferArgs_Invalid(t *testing.T) {
	base := func() *domain.Transfer {
		return &domain.Transfer{RawAmount: big.NewInt(1)}
	}

	tr := base()
	tr.RawAmount = nil
	if _, err := transferArgs(tr); err == nil {
		t.Errorf("nil amount must fail")
	}

	tr = base()
	tr.BlockNumber = math.MaxUint64
	if _, err := transferArgs(tr); err == nil {
		t.Errorf("block number overflow must fail")
	}

	tr = base()
	tr.LogIndex = uint64(math.MaxInt64) + 1
	if _, err := transferArgs(tr); err == nil {
		t.Errorf("log index overflow must fail")
	}
}

func TestSinkFactory_MigratesUntilSuccess(t *testing.T) {
	calls := 0
	f := &SinkFactory{url: "postgres://u:p@127.0.0.1:1/db?connect_timeout=1"}
	f.migrate = func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("database unavailable")
		}
		return nil
	}

	if _, err := f.Open(context.Background()); err == nil || err.Error() != "database unavailable" {
		t.Fatalf("expected migration error, got %v", err)
	}
	// Migration succeeds, the connect to the closed port still fails.
	if _, err := f.Open(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if _, err := f.Open(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if calls != 2 {
		t.Errorf("expected migration to stop after first success, ran %d times", calls)
	}
}

func TestOpenDB_DoesNotConnect(t *testing.T) {
	db, err := OpenDB(Config{URL: "postgres://u:p@127.0.0.1:1/db?connect_timeout=1"})
	if err != nil {
		t.Fatalf("OpenDB against an unreachable host: %v", err)
	}
	defer db.Close()

	if _, err := NewDB(context.Background(), Config{URL: "postgres://u:p@127.0.0.1:1/db?connect_timeout=1"}); err == nil {
		t.Error("NewDB should fail the ping against an unreachable host")
	}
}
