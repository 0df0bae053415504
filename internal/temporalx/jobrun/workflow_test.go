package jobrun

import (
	"context"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func runWorkflow(t *testing.T, statuses ...string) (int, error) {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	calls := 0
	env.RegisterActivityWithOptions(func(ctx context.Context, jobID string) (TickResult, error) {
		st := statuses[len(statuses)-1]
		if calls < len(statuses) {
			st = statuses[calls]
		}
		calls++
		return TickResult{JobID: jobID, Status: st, Stage: "run", Error: "boom"}, nil
	}, activity.RegisterOptions{Name: ActivityTick})

	env.ExecuteWorkflow(Workflow)
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	return calls, env.GetWorkflowError()
}

func TestWorkflowSucceeds(t *testing.T) {
	calls, err := runWorkflow(t, "succeeded")
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWorkflowPollsUntilTerminal(t *testing.T) {
	calls, err := runWorkflow(t, "running", "running", "succeeded")
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWorkflowFailsOnJobFailure(t *testing.T) {
	_, err := runWorkflow(t, "failed")
	if err == nil {
		t.Fatalf("expected workflow error for failed job")
	}
}
