package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trialworks/benchd/internal/core/config"
	"github.com/trialworks/benchd/internal/engine/anomaly"
	"github.com/trialworks/benchd/internal/engine/recovery"
	"github.com/trialworks/benchd/internal/engine/runner"
	"github.com/trialworks/benchd/internal/infra/health"
	redisclient "github.com/trialworks/benchd/internal/infra/redis"
	"github.com/trialworks/benchd/internal/infra/storage"
	"github.com/trialworks/benchd/internal/infra/storage/memory"
	"github.com/trialworks/benchd/internal/infra/storage/postgres"
)

// Engine wires storage, stop flags and the lifecycle components
// together for the CLI and for embedding callers.
type Engine struct {
	cfg       *config.AppConfig
	db        *postgres.DB
	redis     *redisclient.Client
	store     storage.Store
	flags     runner.StopFlags
	guard     *runner.Guard
	detector  *anomaly.Detector
	scheduler *recovery.Scheduler
	log       *slog.Logger
}

// New creates an Engine from configuration. Without a database URL the
// in-memory store is used; without a redis URL stop flags stay
// in-process.
func New(ctx context.Context, cfg *config.AppConfig) (*Engine, error) {
	log := slog.Default()

	e := &Engine{cfg: cfg, log: log}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(cfg.Recovery.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, err
		}
		db.StartMetricsCollector(ctx)
		e.db = db
		e.store = postgres.NewStore(db)
		log.Info("using PostgreSQL storage")
	} else {
		e.store = memory.NewStorage()
		log.Info("using in-memory storage")
	}

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		e.redis = rc
		e.flags = rc
		log.Info("using redis stop flags")
	} else {
		e.flags = runner.NewMemoryFlags()
	}

	e.guard = runner.NewGuard(e.store, e.flags, nil, log)
	e.detector = anomaly.NewDetector(e.store, log)
	e.scheduler = recovery.NewScheduler(e.store, log)
	return e, nil
}

// Store returns the persistence boundary.
func (e *Engine) Store() storage.Store { return e.store }

// Guard returns the runner-facing surface.
func (e *Engine) Guard() *runner.Guard { return e.guard }

// Detector returns the anomaly detector.
func (e *Engine) Detector() *anomaly.Detector { return e.detector }

// Scheduler returns the recovery scheduler.
func (e *Engine) Scheduler() *recovery.Scheduler { return e.scheduler }

// RunSweeper runs the periodic recovery sweep alongside the
// health/metrics server until the context is cancelled. A non-positive
// interval falls back to the configured one.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = e.cfg.Recovery.SweepInterval
	}
	checkers := []health.Checker{}
	if e.db != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: e.db.Health})
	}
	srv := health.NewServer(e.cfg.Server.Port, checkers...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			_ = srv.Stop(context.Background())
		}()
		return e.scheduler.RunPeriodic(ctx, interval)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases database and redis connections.
func (e *Engine) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}
