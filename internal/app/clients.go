package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
	"github.com/yungbote/medicore-backend/internal/platform/ratelimit"
	"github.com/yungbote/medicore-backend/internal/realtime/bus"
	"github.com/yungbote/medicore-backend/internal/temporalx"
)

type Clients struct {
	Store       objectstore.Gateway
	JobBus      bus.Bus
	Temporal    temporalsdkclient.Client
	RateLimiter ratelimit.Limiter

	closers []func() error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := objectstore.New(ctx, log, cfg.Storage)
	if err != nil {
		return Clients{}, fmt.Errorf("init object store: %w", err)
	}

	// Job events: Redis across processes, in-memory when one process runs both halves.
	var jobBus bus.Bus
	switch {
	case cfg.RedisAddr != "":
		b, err := bus.NewRedisBus(log, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis job bus: %w", err)
		}
		jobBus = b
	case cfg.RunMode == RunModeAll:
		jobBus = bus.NewMemoryBus()
	default:
		log.Warn("REDIS_ADDR not set; workers will rely on polling only")
	}

	var tc temporalsdkclient.Client
	if cfg.QueueBackend == QueueBackendTemporal {
		tc, err = temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			if jobBus != nil {
				_ = jobBus.Close()
			}
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
	}

	out := Clients{Store: store, JobBus: jobBus, Temporal: tc}
	if cfg.RunsAPI() && cfg.RateLimitEnabled {
		out.RateLimiter = ratelimit.NewMemory(cfg.RateLimit)
		if cfg.RedisAddr != "" {
			rl, err := ratelimit.NewRedis(cfg.RedisAddr, cfg.RateLimit)
			if err != nil {
				out.Close()
				return Clients{}, fmt.Errorf("init rate limiter: %w", err)
			}
			out.RateLimiter = rl
			out.closers = append(out.closers, rl.Close)
		}
	}
	return out, nil
}

func (c Clients) Close() {
	for _, closeFn := range c.closers {
		_ = closeFn()
	}
	if c.JobBus != nil {
		_ = c.JobBus.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
}
