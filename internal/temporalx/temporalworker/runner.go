package temporalworker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/temporalx"
	"github.com/yungbote/medicore-backend/internal/temporalx/jobrun"
)

// Runner hosts the job_run workflow and its tick activity on the task queue.
type Runner struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	cfg temporalx.Config

	jobRepo     repos.JobRunRepo
	executor    jobrun.Executor
	concurrency int
	maxAttempts int
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	cfg temporalx.Config,
	jobRepo repos.JobRunRepo,
	executor jobrun.Executor,
	concurrency int,
	maxAttempts int,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobRepo == nil || executor == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log.With("component", "TemporalWorker"),
		tc:          tc,
		cfg:         cfg,
		jobRepo:     jobRepo,
		executor:    executor,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
	}, nil
}

// Start begins polling and returns once the worker is running. The worker stops
// when ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	if r.cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
			r.log.Warn("Temporal namespace ensure failed; worker start will retry", "namespace", r.cfg.Namespace, "error", err)
		}
	}

	var missingNamespace bool
	err := temporalx.Retry(ctx, r.log, r.cfg, "temporal worker start", func(ctx context.Context) (bool, error) {
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			return false, nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		missingNamespace = errors.As(startErr, &nfe)
		if missingNamespace && r.cfg.AutoRegisterNamespace {
			_ = temporalx.EnsureNamespace(ctx, r.cfg, r.log)
		}
		return true, startErr
	})
	if err != nil {
		if missingNamespace {
			return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, err)
		}
		return err
	}
	r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue)
	return nil
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	acts := &jobrun.Activities{
		Log:         r.log,
		Jobs:        r.jobRepo,
		Executor:    r.executor,
		MaxAttempts: r.maxAttempts,
	}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: jobrun.ActivityTick})
	return w
}
