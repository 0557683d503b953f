package control

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/fetcher/internal/core/config"
	"github.com/vietddude/fetcher/internal/core/domain"
	"github.com/vietddude/fetcher/internal/fetching/health"
	"github.com/vietddude/fetcher/internal/fetching/worker"
	"github.com/vietddude/fetcher/internal/infra/netretry"
	redisclient "github.com/vietddude/fetcher/internal/infra/redis"
	"github.com/vietddude/fetcher/internal/infra/storage"
	"github.com/vietddude/fetcher/internal/infra/storage/memory"
	"github.com/vietddude/fetcher/internal/infra/storage/postgres"
	"github.com/vietddude/fetcher/internal/infra/transport"
	"github.com/vietddude/fetcher/internal/infra/vcs"
)

// Fetcher is the main application struct that manages the fetch lifecycle.
type Fetcher struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	queue        *redisclient.FailedFetchQueue
	client       *transport.Client
	vcsFetcher   *vcs.Fetcher
	mirrors      map[string]*transport.MirrorClient
	worker       *worker.Worker
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
}

// DownloadDir is where fetched artifacts land. Relative to CWD.
const DownloadDir = "downloads"

// NewFetcher creates a new Fetcher instance with all dependencies initialized.
func NewFetcher(cfg *config.AppConfig) (*Fetcher, error) {
	log := slog.Default()

	// Reject a broken net section before anything network-dependent starts.
	if _, err := cfg.NetCfg(); err != nil {
		return nil, fmt.Errorf("invalid net config: %w", err)
	}

	// 1. Initialize Storage
	var (
		history    storage.FetchHistoryRepository
		deadLetter storage.FailedFetchRepository
		db         *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations. Goose needs the raw *sql.DB under sqlx.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		history = postgres.NewFetchRepo(db)
		deadLetter = postgres.NewFailedFetchRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		history = memory.NewFetchRepo(store)
		deadLetter = memory.NewFailedRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Redis queue
	redisClient, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}
	queue := redisclient.NewFailedFetchQueue(redisClient)

	// 3. Initialize transports
	caps := transport.DetectCapabilities(log)
	client := transport.NewClient("registry", cfg.Net.Timeout, caps)
	vcsFetcher := vcs.NewFetcher(vcs.NewTransport(cfg.Net.Timeout))

	mirrors := make(map[string]*transport.MirrorClient)
	monitors := map[string]*transport.Monitor{
		"registry": client.Monitor,
	}
	for _, m := range cfg.Mirrors {
		mirror, err := transport.NewMirrorClient(context.Background(), m.Name, m.Endpoint)
		if err != nil {
			slog.Warn("Skipping unreachable mirror", "name", m.Name, "error", err)
			continue
		}
		mirrors[m.Name] = mirror
		monitors["mirror/"+m.Name] = mirror.Monitor
	}

	// 4. Health monitoring
	var dbPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	healthMon := health.NewMonitor(dbPinger, queue, monitors)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	// 5. Worker
	if err := os.MkdirAll(DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	w := worker.New(cfg, queue, history, deadLetter, client, vcsFetcher, mirrors, DownloadDir, log)

	return &Fetcher{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		queue:        queue,
		client:       client,
		vcsFetcher:   vcsFetcher,
		mirrors:      mirrors,
		worker:       w,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Start launches the health server and worker, and enqueues the configured
// sources.
func (f *Fetcher) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	if f.db != nil {
		f.db.StartMetricsCollector(ctx)
	}

	go func() {
		if err := f.healthServer.Start(); err != nil && ctx.Err() == nil {
			f.log.Error("Health server stopped", "error", err)
		}
	}()

	for _, src := range f.cfg.Sources {
		if err := f.Submit(ctx, src.Kind, src.URL); err != nil {
			f.log.Error("Failed to enqueue source", "name", src.Name, "error", err)
		}
	}

	go f.worker.Start(ctx)

	f.log.Info("Fetcher started", "port", f.cfg.Server.Port, "sources", len(f.cfg.Sources))
	return nil
}

// Submit queues one fetch job.
func (f *Fetcher) Submit(ctx context.Context, kind domain.SourceKind, url string) error {
	return f.queue.Add(ctx, &domain.FailedFetch{
		ID:        uuid.NewString(),
		Source:    kind,
		URL:       url,
		Status:    domain.FailedFetchStatusPending,
		CreatedAt: time.Now().Unix(),
	})
}

// Fetch runs one fetch synchronously under a retry session, bypassing the
// queue. Used by the one-shot CLI mode.
func (f *Fetcher) Fetch(ctx context.Context, url string, dst *os.File) (*transport.DownloadInfo, error) {
	shell := netretry.LogShell{Log: f.log}
	return netretry.Do(f.cfg, shell, func() (*transport.DownloadInfo, error) {
		return f.client.Download(ctx, url, dst)
	})
}

// Stop shuts the service down.
func (f *Fetcher) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}

	if err := f.healthServer.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop health server: %w", err)
	}

	for _, m := range f.mirrors {
		if err := m.Close(); err != nil {
			f.log.Warn("Failed to close mirror", "error", err)
		}
	}
	if f.redisClient != nil {
		if err := f.redisClient.Close(); err != nil {
			f.log.Warn("Failed to close redis", "error", err)
		}
	}
	if f.db != nil {
		if err := f.db.Close(); err != nil {
			f.log.Warn("Failed to close db", "error", err)
		}
	}

	return nil
}
