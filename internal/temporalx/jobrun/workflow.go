package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	pollInterval         = 2 * time.Second
	continueTickLimit    = 500
	continueHistoryLimit = 10000
)

// Workflow drives one job_run row; the workflow id is the job id. A failed job
// fails the workflow so the start options' retry policy schedules the next
// attempt.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		// Job retries are handled at the workflow level.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(out.Status)) {
		case "succeeded", "canceled":
			return nil
		case "failed":
			return temporal.NewApplicationError(
				fmt.Sprintf("job failed (stage=%s attempts=%d): %s", out.Stage, out.Attempts, out.Error),
				"JobFailed",
			)
		}

		// Non-terminal after a tick; poll until the row settles.
		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, tick) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && info.GetCurrentHistoryLength() >= continueHistoryLimit
}
