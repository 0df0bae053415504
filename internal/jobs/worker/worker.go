package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/jobs/runtime"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/realtime"
	"github.com/yungbote/medicore-backend/internal/realtime/bus"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	StaleAfter        time.Duration
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// Observer receives per-job outcomes; used for metrics.
type Observer interface {
	JobFinished(jobType string, status string, d time.Duration)
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   realtime.JobNotifier
	events   bus.Bus
	observer Observer
	cfg      Config

	wake chan struct{}
	wg   sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify realtime.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
		wake:     make(chan struct{}, 1),
	}
}

// WithBus lets the pool wake immediately on job_created events instead of
// waiting for the next poll tick.
func (w *Worker) WithBus(b bus.Bus) *Worker {
	w.events = b
	return w
}

func (w *Worker) WithObserver(o Observer) *Worker {
	w.observer = o
	return w
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"poll_interval", w.cfg.PollInterval.String(),
		"max_attempts", w.cfg.MaxAttempts,
		"job_timeout", w.cfg.JobTimeout.String(),
		"job_types", w.registry.Types(),
	)

	if w.events != nil {
		err := w.events.Subscribe(ctx, func(realtime.JobEvent) { w.Wake() }, realtime.EventJobCreated)
		if err != nil {
			w.log.Warn("Job bus subscribe failed; falling back to polling only", "error", err)
		}
	}

	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop has exited after ctx cancellation.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		// Drain the queue before going back to sleep.
		for ctx.Err() == nil {
			ran, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				break
			}
			if !ran {
				break
			}
		}
	}
}

// RunOnce claims at most one runnable job and executes it to completion.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.Execute(ctx, job)
	return true, nil
}

// Execute runs an already-claimed job under the pool's timeout, heartbeat and
// panic handling. The Temporal activity shares this path.
func (w *Worker) Execute(parent context.Context, job *types.JobRun) {
	started := time.Now()
	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	ctx, cancel := context.WithTimeout(parent, w.cfg.JobTimeout)
	defer cancel()

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	defer func() {
		if w.observer != nil {
			w.observer.JobFinished(job.JobType, job.Status, time.Since(started))
		}
	}()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	stopHB := w.startHeartbeat(ctx, job)
	defer stopHB()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()

		runErr := h.Run(jc)
		if runErr == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			runErr = ctx.Err()
		}
		if runErr != nil {
			if errors.Is(runErr, context.DeadlineExceeded) {
				runErr = fmt.Errorf("job exceeded timeout of %s: %w", w.cfg.JobTimeout, runErr)
			}
			log.Warn("Job failed", "error", runErr)
			jc.Fail("run", runErr)
			return
		}
		if job.Status == types.JobStatusRunning {
			// Handler returned nil without a terminal transition.
			jc.Succeed("done", nil)
		}
	}()
	log.Info("Job finished", "status", job.Status, "duration_ms", time.Since(started).Milliseconds())
}

func (w *Worker) startHeartbeat(ctx context.Context, job *types.JobRun) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
					w.log.Debug("Job heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
