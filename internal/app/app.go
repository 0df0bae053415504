package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/db"
	httpapi "github.com/yungbote/medicore-backend/internal/http"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  Clients
	Metrics  *observability.Metrics
	Server   *httpapi.Server

	dbService     *db.Service
	traceShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Configuration loaded",
		"run_mode", cfg.RunMode,
		"queue_backend", cfg.QueueBackend,
		"storage_mode", string(cfg.Storage.Mode),
		"db_driver", cfg.DB.Driver,
	)

	a := &App{Log: log, Cfg: cfg}
	a.traceShutdown = observability.InitTracing(ctx, log, cfg.Tracing)

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.dbService = dbs
	if err := dbs.Migrate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.DB = dbs.DB()

	if cfg.MetricsEnabled {
		a.Metrics = observability.NewMetrics(cfg.MetricsScrapeInterval)
	}

	a.Repos = wireRepos(a.DB, log)
	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Clients, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.RunsAPI() {
		a.Server = httpapi.NewServer(log, net.JoinHostPort("", cfg.Port), wireRouterConfig(log, a.DB, cfg, a.Clients, a.Services, a.Metrics))
	}
	return a, nil
}

// Run starts the components selected by RUN_MODE and blocks until ctx is
// canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return errors.New("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)

	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.RedisAddr)

	if a.Cfg.RunsWorker() {
		switch {
		case a.Services.TemporalWorker != nil:
			if err := a.Services.TemporalWorker.Start(ctx); err != nil {
				return fmt.Errorf("start temporal worker: %w", err)
			}
			g.Go(func() error {
				a.sweepFailedDispatches(ctx)
				return nil
			})
		case a.Services.JobWorker != nil:
			a.Services.JobWorker.Start(ctx)
			g.Go(func() error {
				<-ctx.Done()
				a.Services.JobWorker.Wait()
				return nil
			})
		}
	}

	if a.Server != nil {
		g.Go(func() error {
			return a.Server.Run(ctx, a.Cfg.ShutdownTimeout)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// sweepFailedDispatches restarts workflows for jobs whose dispatch failed; with
// the Temporal backend nothing else would ever pick them up.
func (a *App) sweepFailedDispatches(ctx context.Context) {
	interval := a.Cfg.Worker.RetryDelay
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.Services.Jobs.RedispatchFailed(dbctx.Context{Ctx: ctx}, interval); err != nil {
				a.Log.Warn("Dispatch sweep failed", "error", err)
			}
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.traceShutdown != nil {
		_ = a.traceShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
