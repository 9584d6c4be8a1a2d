package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	redisclient "github.com/vietddude/tokenstream/internal/infra/redis"
	"github.com/vietddude/tokenstream/internal/infra/storage"
	"github.com/vietddude/tokenstream/internal/infra/storage/postgres"
)

var showRejected int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion totals per chain and token",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&showRejected, "rejected", 5, "number of recent rejected messages to show")
	rootCmd.AddCommand(statusCmd)
}

// progressStore is the Redis view of streamed progress.
type progressStore interface {
	GetProgress(ctx context.Context, chain, token string) (uint64, bool, error)
	CountRejected(ctx context.Context, chain string) (int64, error)
	ListRejected(ctx context.Context, chain string, n int) ([]redisclient.RejectedEntry, error)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	summaries, err := postgres.NewTransferRepo(db).Summaries(ctx)
	if err != nil {
		slog.Error("Failed to query transfers", "error", err)
		os.Exit(1)
	}

	var progress progressStore
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, watermark unavailable", "error", err)
		} else {
			defer client.Close()
			progress = client
		}
	}

	printStatus(ctx, os.Stdout, summaries, progress)
	if progress != nil {
		printRejected(ctx, os.Stdout, cfg.Chain.ID, progress, showRejected)
	}
}

func printStatus(ctx context.Context, out io.Writer, summaries []storage.TokenSummary, progress progressStore) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tTOKEN\tTRANSFERS\tLATEST BLOCK\tWATERMARK\tLAST INGESTED")

	for _, s := range summaries {
		watermark := "-"
		if progress != nil {
			if block, ok, err := progress.GetProgress(ctx, s.Chain, s.Token); err == nil && ok {
				watermark = fmt.Sprintf("%d", block)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.Chain, s.Token, s.Transfers, s.LatestBlock, watermark,
			s.LastIngested.UTC().Format(time.RFC3339))
	}
	_ = w.Flush()
}

func printRejected(ctx context.Context, out io.Writer, chain string, progress progressStore, n int) {
	total, err := progress.CountRejected(ctx, chain)
	if err != nil {
		slog.Warn("Failed to count rejected messages", "error", err)
		return
	}
	_, _ = fmt.Fprintf(out, "\nRejected messages (%s): %d\n", chain, total)
	if total == 0 || n <= 0 {
		return
	}

	entries, err := progress.ListRejected(ctx, chain, n)
	if err != nil {
		slog.Warn("Failed to list rejected messages", "error", err)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AT\tKIND\tFIELD\tTX\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.At.UTC().Format(time.RFC3339), e.Kind, e.Field, e.TxHash, e.Error)
	}
	_ = w.Flush()
}
