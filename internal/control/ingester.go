package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/tokenstream/internal/core/config"
	"github.com/vietddude/tokenstream/internal/core/worker"
	"github.com/vietddude/tokenstream/internal/ingest/event"
	"github.com/vietddude/tokenstream/internal/ingest/health"
	"github.com/vietddude/tokenstream/internal/ingest/metrics"
	"github.com/vietddude/tokenstream/internal/ingest/session"
	"github.com/vietddude/tokenstream/internal/ingest/sink"
	"github.com/vietddude/tokenstream/internal/ingest/supervisor"
	natsclient "github.com/vietddude/tokenstream/internal/infra/nats"
	redisclient "github.com/vietddude/tokenstream/internal/infra/redis"
	"github.com/vietddude/tokenstream/internal/infra/storage"
	"github.com/vietddude/tokenstream/internal/infra/storage/memory"
	"github.com/vietddude/tokenstream/internal/infra/storage/postgres"
	"github.com/vietddude/tokenstream/internal/infra/ws"
)

const shutdownTimeout = 10 * time.Second

// Ingester wires the subscription channel, sink and observers under one
// supervisor and serves health endpoints alongside it.
type Ingester struct {
	cfg          *config.AppConfig
	supervisor   *supervisor.Supervisor
	healthMon    *health.Monitor
	healthServer *health.Server
	pruner       *worker.Pruner
	store        *memory.MemoryStorage
	db           *postgres.DB
	redisClient  *redisclient.Client
	progress     *redisclient.ProgressObserver
	publisher    *natsclient.Publisher
	log          *slog.Logger
}

// NewIngester creates an Ingester with all dependencies initialized.
// Redis and NATS are optional; a failure to reach either is logged and the
// observer is left out.
func NewIngester(ctx context.Context, cfg *config.AppConfig) (*Ingester, error) {
	ing := &Ingester{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	var sinks sink.Factory
	var pruneStore storage.TransferPruner
	if cfg.Database.URL != "" {
		// Reachability is checked by each session's sink open, so an outage
		// at boot is retried like any other.
		db, err := postgres.OpenDB(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		ing.db = db
		factory := postgres.NewSinkFactory(cfg.Database.URL)
		if cfg.Database.Migrate {
			factory.WithMigrations(db)
		}
		sinks = factory
		pruneStore = postgres.NewTransferRepo(db)
		ing.log.Info("Using PostgreSQL storage")
	} else {
		ing.store = memory.NewMemoryStorage()
		sinks = ing.store
		pruneStore = ing.store
		ing.log.Info("Using Memory storage")
	}

	// 2. Initialize Observers
	ing.healthMon = health.NewMonitor(cfg.Chain.ID, cfg.Health.MaxFailures)
	observers := event.Multi{
		event.NewLogObserver(ing.log),
		metrics.NewObserver(cfg.Chain.ID),
		ing.healthMon,
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			ing.log.Warn("Failed to connect to Redis, progress tracking disabled", "error", err)
		} else {
			ing.redisClient = client
			ing.progress = redisclient.NewProgressObserver(client, cfg.Chain.ID, cfg.Redis, ing.log)
			observers = append(observers, ing.progress)
		}
	}

	if cfg.NATS.URL != "" {
		pub, err := natsclient.Connect(cfg.NATS, ing.log)
		if err != nil {
			ing.log.Warn("Failed to connect to NATS, publishing disabled", "error", err)
		} else {
			ing.publisher = pub
			observers = append(observers, pub)
		}
	}

	// 3. Initialize Channel and Supervisor
	dialer := ws.NewDialer(ws.Config{
		URL:              cfg.Stream.URL,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		WriteTimeout:     cfg.Stream.WriteTimeout,
		PingInterval:     cfg.Stream.PingInterval,
		PongTimeout:      cfg.Stream.PongTimeout,
	})
	dial := session.DialerFunc(func(ctx context.Context) (session.Channel, error) {
		conn, err := dialer.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})

	filter := session.Filter{
		Address: cfg.Stream.Filter.Address,
		Topics:  []string{cfg.Stream.Filter.Topic},
	}
	newSession := func(attempt int) supervisor.Runner {
		return session.New(session.Config{
			ID:        uuid.NewString(),
			Attempt:   attempt,
			Chain:     cfg.Chain.ID,
			RequestID: cfg.Stream.RequestID,
			Filter:    filter,
			Logger:    ing.log,
		}, dial, sinks, observers)
	}

	ing.supervisor = supervisor.New(
		newSession,
		supervisor.FixedBackoff{Interval: cfg.Stream.ReconnectDelay},
		observers,
		ing.log,
	)

	if cfg.Chain.RetentionPeriod > 0 {
		ing.pruner = worker.NewPruner(cfg.Chain.ID, cfg.Chain.RetentionPeriod, pruneStore, ing.log)
	}

	// 4. Initialize Health Server
	ing.healthServer = health.NewServer(ing.healthMon, cfg.Server.Port)

	return ing, nil
}

// Run starts the supervisor and health server and blocks until ctx is
// cancelled or the health server fails.
func (i *Ingester) Run(ctx context.Context) error {
	i.log.Info("Starting ingester",
		"chain", i.cfg.Chain.ID,
		"endpoint", ws.Redact(i.cfg.Stream.URL),
		"address", i.cfg.Stream.Filter.Address,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return i.supervisor.Run(ctx)
	})

	if i.pruner != nil {
		g.Go(func() error {
			i.pruner.Start(ctx)
			return nil
		})
	}

	g.Go(func() error {
		if err := i.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return i.healthServer.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Close releases connections held outside of sessions.
func (i *Ingester) Close() error {
	i.log.Info("Stopping ingester...")

	var errs []error
	if i.publisher != nil {
		if err := i.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close nats: %w", err))
		}
	}
	if i.progress != nil {
		i.progress.Close()
	}
	if i.redisClient != nil {
		if err := i.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	return errors.Join(errs...)
}
