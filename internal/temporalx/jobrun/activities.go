package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

// Executor runs a claimed job to a terminal state. *worker.Worker implements it.
type Executor interface {
	Execute(ctx context.Context, job *types.JobRun)
}

type Activities struct {
	Log         *logger.Logger
	Jobs        repos.JobRunRepo
	Executor    Executor
	MaxAttempts int
}

// Tick claims the job by id and executes it once. Terminal jobs are reported
// without running again, except failed jobs that still have attempts left:
// those are re-run so the workflow retry policy drives queue-level retries.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Jobs == nil || a.Executor == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id")
	}

	job, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job not found")
	}
	if !a.runnable(job) {
		return fill(res, job), nil
	}

	now := time.Now().UTC()
	claimed, err := a.Jobs.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, id,
		[]string{types.JobStatusCanceled, types.JobStatusSucceeded},
		map[string]interface{}{
			"status":       types.JobStatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"error":        "",
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if err != nil {
		return res, fmt.Errorf("jobrun: claim: %w", err)
	}
	if !claimed {
		return fill(res, job), nil
	}
	job.Status = types.JobStatusRunning
	job.Attempts++
	job.Error = ""
	job.LockedAt = &now
	job.HeartbeatAt = &now

	stopHB := startActivityHeartbeat(ctx)
	defer stopHB()
	a.Executor.Execute(ctx, job)

	updated, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return res, err
	}
	if updated == nil {
		return res, fmt.Errorf("jobrun: job not found after tick")
	}
	return fill(res, updated), nil
}

func (a *Activities) runnable(job *types.JobRun) bool {
	switch job.Status {
	case types.JobStatusQueued, types.JobStatusRunning:
		return true
	case types.JobStatusFailed:
		max := a.MaxAttempts
		if max < 1 {
			max = 3
		}
		return job.Attempts < max
	default:
		return false
	}
}

func fill(res TickResult, job *types.JobRun) TickResult {
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Attempts = job.Attempts
	res.Error = job.Error
	return res
}

func startActivityHeartbeat(ctx context.Context) func() {
	if !activity.IsActivity(ctx) {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
