package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/medicore-backend/internal/data/repos/testutil"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
)

type fakeTemporal struct {
	temporalsdkclient.Client
	err     error
	started []string
}

func (f *fakeTemporal) ExecuteWorkflow(_ context.Context, opts temporalsdkclient.StartWorkflowOptions, _ interface{}, _ ...interface{}) (temporalsdkclient.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, opts.ID)
	return nil, nil
}

func TestRedispatchFailedRestartsStrandedJobs(t *testing.T) {
	f := newUploadFixture(t, fixtureOpts{})
	tc := &fakeTemporal{err: errors.New("frontend unavailable")}
	svc := NewJobService(f.db, testutil.Logger(t), f.jobRuns, nil, 3, &TemporalDispatch{Client: tc, TaskQueue: "medicore"})
	dbc := dbctx.Context{Ctx: f.ctx}

	job, err := svc.Enqueue(dbc, uuid.New(), JobTypeStudyProcess, EntityTypeStudy, nil, map[string]any{"study_id": uuid.New().String()})
	if err == nil || job == nil {
		t.Fatalf("expected dispatch error, got job=%v err=%v", job, err)
	}
	got, err := f.jobRuns.GetByID(dbc, job.ID)
	if err != nil || got == nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != types.JobStatusFailed || got.Stage != StageDispatch {
		t.Fatalf("after failed dispatch: %s/%s", got.Status, got.Stage)
	}
	st, err := svc.Status(dbc, job.ID)
	if err != nil || st.Status != TaskRetry {
		t.Fatalf("status = %+v, %v", st, err)
	}

	tc.err = nil
	n, err := svc.RedispatchFailed(dbc, -time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("RedispatchFailed = %d, %v", n, err)
	}
	if len(tc.started) != 1 || tc.started[0] != job.ID.String() {
		t.Fatalf("started workflows: %v", tc.started)
	}
	got, _ = f.jobRuns.GetByID(dbc, job.ID)
	if got.Status != types.JobStatusQueued || got.Error != "" {
		t.Fatalf("after redispatch: %s %q", got.Status, got.Error)
	}

	if n, err := svc.RedispatchFailed(dbc, -time.Minute); err != nil || n != 0 {
		t.Fatalf("second sweep = %d, %v", n, err)
	}
}

func TestRedispatchFailedWithoutTemporal(t *testing.T) {
	f := newUploadFixture(t, fixtureOpts{})
	if n, err := f.jobs.RedispatchFailed(dbctx.Context{Ctx: f.ctx}, 0); err != nil || n != 0 {
		t.Fatalf("RedispatchFailed = %d, %v", n, err)
	}
}
