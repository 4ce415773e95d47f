// -----------------------------------------------------------------------
// Last Modified: Friday, 31st July 2026 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/cache"
	"github.com/ternarybob/quaero/internal/cluster"
	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/importadapter"
	"github.com/ternarybob/quaero/internal/importadapter/badgerwarehouse"
	"github.com/ternarybob/quaero/internal/importadapter/sqlwarehouse"
	"github.com/ternarybob/quaero/internal/jobstore"
	"github.com/ternarybob/quaero/internal/objectstore"
	"github.com/ternarybob/quaero/internal/scheduler"
	"github.com/ternarybob/quaero/internal/wsevents"
)

// App holds every wired component the Metrics Calculation Service needs
// to serve HTTP/WebSocket traffic: the Scheduler that orchestrates jobs
// and everything it in turn owns (Export Cache, Cluster Manager, Job
// State Store, Import Adapter, object store), plus the WebSocket hub the
// server layer streams job updates through.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	Scheduler *scheduler.Scheduler
	Hub       *wsevents.Hub

	objectStore   *objectstore.Store
	importAdapter importAdapterCloser
}

// importAdapterCloser lets New release whichever warehouse backend it
// opened without the rest of the app needing to know which one it is.
type importAdapterCloser interface {
	importadapter.Adapter
	Close() error
}

// New wires the full dependency graph for a Metrics Calculation Service
// process: object store -> warehouse backend -> Export Cache -> Cluster
// Manager -> Job State Store -> Scheduler -> WebSocket hub, per spec §4.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	objectStore, err := objectstore.New(".", cfg.Storage.Object.Bucket)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	app.objectStore = objectStore
	logger.Info().Str("bucket", cfg.Storage.Object.Bucket).Msg("object store initialized")

	adapter, err := openImportAdapter(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize import adapter: %w", err)
	}
	app.importAdapter = adapter
	logger.Info().Str("backend", cfg.Storage.Backend).Msg("import adapter initialized")

	cacheMgr := cache.New(cache.NewLocalExporter(objectStore), logger)

	executor := resolveExecutor(cfg, objectStore, logger)
	clusterMgr := cluster.NewManager(executor, logger)

	jobs := jobstore.New(logger)

	app.Scheduler = scheduler.New(cacheMgr, clusterMgr, jobs, adapter, objectStore, cfg.Service.ResultPathPrefix, logger)

	app.Hub = wsevents.NewHub(logger, 200*time.Millisecond)

	if cfg.Cluster.MinWorkers > 0 {
		if _, err := app.Scheduler.StartCluster(ctx, cfg.Cluster.MinWorkers, cfg.Cluster.MaxWorkers); err != nil {
			logger.Warn().Err(err).Msg("failed to auto-start cluster at boot, waiting for /api/cluster/start")
		}
	}

	if err := app.Scheduler.StartStatsReporter("@every 30s"); err != nil {
		logger.Warn().Err(err).Msg("failed to start periodic cluster health report")
	}

	logger.Info().
		Str("pool_type", cfg.Cluster.PoolType).
		Int("min_workers", cfg.Cluster.MinWorkers).
		Int("max_workers", cfg.Cluster.MaxWorkers).
		Msg("Metrics Calculation Service initialization complete")

	return app, nil
}

// openImportAdapter opens the warehouse backend named by
// cfg.Storage.Backend (spec §4.5 "translate/import are implemented once
// per warehouse backend").
func openImportAdapter(cfg *common.Config) (importAdapterCloser, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return sqlwarehouse.Open(cfg.Storage.SQLite.Path)
	case "badger", "":
		return badgerwarehouse.Open(cfg.Storage.Badger.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want \"badger\" or \"sqlite\")", cfg.Storage.Backend)
	}
}

// resolveExecutor picks the Cluster Manager's worker runtime. Every
// configuration gets the local-filesystem stand-in; neither the pool type
// nor the debug toggles change the choice, since the embedded engine is
// opaque to this service either way (spec §1).
func resolveExecutor(cfg *common.Config, store *objectstore.Store, logger arbor.ILogger) cluster.Executor {
	if cfg.Debug.WithEmbeddedEngine {
		logger.Debug().Msg("using embedded-engine debug executor")
	}
	return cluster.NewLocalExecutor(store)
}

// Close releases every resource New acquired: the cluster (in-flight
// Export Cache work is allowed to finish, per spec §4.2 vs §4.3), then
// the warehouse handle.
func (a *App) Close() error {
	a.cancelCtx()

	if a.Scheduler != nil {
		if err := a.Scheduler.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("error closing scheduler")
		}
	}

	if a.importAdapter != nil {
		if err := a.importAdapter.Close(); err != nil {
			return fmt.Errorf("failed to close import adapter: %w", err)
		}
	}

	a.Logger.Info().Msg("application shutdown complete")
	return nil
}
