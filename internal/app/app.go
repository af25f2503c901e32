// Package app initializes and holds the long-lived services of the
// collector, acting as a dependency injection container. It is built
// once at startup and drives the whole collection run.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/api"
	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/clock/system"
	"github.com/Baabao/insert-itunes-collector/internal/collector"
	"github.com/Baabao/insert-itunes-collector/internal/config"
	"github.com/Baabao/insert-itunes-collector/internal/crawl"
	"github.com/Baabao/insert-itunes-collector/internal/database"
	"github.com/Baabao/insert-itunes-collector/internal/exclusion"
	"github.com/Baabao/insert-itunes-collector/internal/feed"
	"github.com/Baabao/insert-itunes-collector/internal/logging"
	"github.com/Baabao/insert-itunes-collector/internal/metrics"
	"github.com/Baabao/insert-itunes-collector/internal/request"
	"github.com/Baabao/insert-itunes-collector/internal/storage"
	"github.com/Baabao/insert-itunes-collector/internal/storage/local"
	"github.com/Baabao/insert-itunes-collector/internal/tagcache"
)

// App holds the shared services of one collector process.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock

	db              database.Provider
	feedArtifacts   storage.Provider
	recordArtifacts storage.Provider
	tags            *tagcache.Cache
	excluded        *exclusion.List
	requests        *request.Client
	catalog         *catalog.Client

	// writeLock gates every database write in the process.
	writeLock sync.Mutex

	statusMu sync.Mutex
	status   api.RunStatus
}

// New creates and initializes the App from configuration. It fails fast
// when any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	clk := system.New()

	feedArtifacts, err := newArtifactStore(cfg.Storage.Provider, cfg.Feed.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init feed artifact store: %w", err)
	}
	recordArtifacts, err := newArtifactStore(cfg.Storage.Provider, cfg.Storage.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("init record artifact store: %w", err)
	}

	db, err := newDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tags, err := tagcache.Load(cfg.Storage.TagsFile)
	if err != nil {
		return nil, fmt.Errorf("load tag cache: %w", err)
	}
	excluded, err := exclusion.Load(cfg.Storage.ExclusionFile)
	if err != nil {
		return nil, fmt.Errorf("load exclusion list: %w", err)
	}

	requests := request.New(request.Config{
		Timeout:   cfg.RequestTimeout(),
		RetryWait: cfg.RetryWait(),
	}, clk, logger)

	return &App{
		cfg:             cfg,
		logger:          logger,
		clock:           clk,
		db:              db,
		feedArtifacts:   feedArtifacts,
		recordArtifacts: recordArtifacts,
		tags:            tags,
		excluded:        excluded,
		requests:        requests,
		catalog:         catalog.New(requests, cfg.Catalog.BaseURL, cfg.Catalog.Country, logger),
		status:          api.RunStatus{State: "idle"},
	}, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Database returns the persistence provider.
func (a *App) Database() database.Provider {
	return a.db
}

// Status returns a snapshot of the current run for the ops API.
func (a *App) Status() api.RunStatus {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.status
}

// RunCollection executes one full run: crawl every enabled genre, then
// collect and persist every resolved entry. Per-item failures never
// fail the run; RunCollection only errors when it cannot start at all.
func (a *App) RunCollection(ctx context.Context, genreIDs []catalog.GenreID) error {
	if len(genreIDs) == 0 {
		return fmt.Errorf("no genres to collect")
	}

	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))
	a.setStatus(func(s *api.RunStatus) {
		*s = api.RunStatus{RunID: runID, State: "crawling", StartedAt: a.clock.Now()}
	})

	state := crawl.NewState()
	resolver := crawl.NewResolver(a.catalog, state, a.cfg.DetailTimeout(), logger)
	scheduler := crawl.NewScheduler(a.catalog, resolver, state, a.clock, crawl.Config{
		GenreWorkers:       a.cfg.Crawler.GenreWorkers,
		DetailConcurrency:  a.cfg.Crawler.DetailConcurrency,
		RetryPasses:        a.cfg.Crawler.RetryPasses,
		GenreRetryAttempts: a.cfg.Crawler.GenreRetryAttempts,
		GenreBackoffBase:   a.cfg.GenreBackoffBase(),
		GenreBackoffMax:    a.cfg.GenreBackoffMax(),
	}, logger)

	report := scheduler.Run(ctx, genreIDs)
	a.setStatus(func(s *api.RunStatus) {
		s.State = "collecting"
		s.Resolved = report.ResolvedCount
		s.PendingRetry = len(report.RetryIDs)
	})

	fetcher := feed.NewFetcher(a.requests, a.feedArtifacts, a.cfg.HTTP.AdapterHosts, logger)
	col := collector.New(
		a.db,
		fetcher,
		a.recordArtifacts,
		a.tags,
		a.excluded,
		a.clock,
		&a.writeLock,
		collector.Config{
			Workers:     a.cfg.Crawler.DetailConcurrency,
			FeedTimeout: a.cfg.FeedTimeout(),
		},
		logger,
	)
	summary := col.Run(ctx, report.Charts, state.Details())

	a.setStatus(func(s *api.RunStatus) {
		s.State = "finished"
		s.Saved = summary.Saved
	})
	logger.Info("collection run finished",
		zap.Int("resolved", report.ResolvedCount),
		zap.Int("saved", summary.Saved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("excluded", summary.Excluded),
	)
	return nil
}

// Close shuts down the services held by the container.
func (a *App) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("error closing database connection", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *App) setStatus(update func(*api.RunStatus)) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	update(&a.status)
}

func newArtifactStore(provider, baseDir string) (storage.Provider, error) {
	switch provider {
	case "local":
		if baseDir == "" {
			return nil, fmt.Errorf("storage provider is 'local' but no directory is set")
		}
		return local.New(local.Config{BaseDir: baseDir})
	case "noop":
		return storage.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", provider)
	}
}

func newDatabase(ctx context.Context, cfg config.Config, logger *zap.Logger) (database.Provider, error) {
	switch cfg.DB.Provider {
	case "postgres":
		if cfg.DB.DSN == "" {
			return nil, fmt.Errorf("database provider is 'postgres' but db.dsn is not set")
		}
		logger.Info("connecting to postgres")
		db, err := database.NewPostgresProvider(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		return db, nil
	case "noop":
		logger.Info("using no-op database provider, records will be discarded")
		return database.NoOpProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown database provider: %s", cfg.DB.Provider)
	}
}
