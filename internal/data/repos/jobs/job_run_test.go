package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/medicore-backend/internal/data/repos/testutil"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
)

func newJob(status string, createdAt time.Time) *types.JobRun {
	return &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     "study_process",
		EntityType:  "study",
		EntityID:    testutil.PtrUUID(uuid.New()),
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	now := time.Now().UTC()

	queued := newJob(types.JobStatusQueued, now.Add(-3*time.Hour))

	failed := newJob(types.JobStatusFailed, now.Add(-2*time.Hour))
	failed.LastErrorAt = testutil.PtrTime(now.Add(-2 * time.Hour))

	stale := newJob(types.JobStatusRunning, now.Add(-1*time.Hour))
	stale.HeartbeatAt = testutil.PtrTime(now.Add(-10 * time.Hour))

	exhausted := newJob(types.JobStatusFailed, now.Add(-4*time.Hour))
	exhausted.Attempts = 3
	exhausted.LastErrorAt = testutil.PtrTime(now.Add(-4 * time.Hour))

	done := newJob(types.JobStatusSucceeded, now.Add(-5*time.Hour))

	if _, err := repo.Create(dbc, []*types.JobRun{queued, failed, stale, exhausted, done}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []uuid.UUID{queued.ID, failed.ID, stale.ID}
	for i, id := range want {
		got, err := repo.ClaimNextRunnable(dbc, 3, time.Minute, 30*time.Minute)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("claim %d: expected %s, got %+v", i, id, got)
		}
		if got.Status != types.JobStatusRunning {
			t.Fatalf("claim %d: expected running, got %s", i, got.Status)
		}
	}

	if got, err := repo.ClaimNextRunnable(dbc, 3, time.Minute, 30*time.Minute); err != nil || got != nil {
		t.Fatalf("expected nothing left to claim, got %+v err=%v", got, err)
	}

	row, err := repo.GetByID(dbc, queued.ID)
	if err != nil || row == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Attempts != 1 || row.LockedAt == nil {
		t.Fatalf("claim should bump attempts and lock: %+v", row)
	}
}

func TestJobRunRepoUpdateUnlessStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	canceled := newJob(types.JobStatusCanceled, time.Now().UTC())
	if _, err := repo.Create(dbc, []*types.JobRun{canceled}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, canceled.ID, []string{types.JobStatusCanceled}, map[string]interface{}{
		"status": types.JobStatusSucceeded,
	})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("canceled job must not be overwritten")
	}

	has, err := repo.HasRunnableForEntity(dbc, "study", *canceled.EntityID, "study_process")
	if err != nil || has {
		t.Fatalf("canceled job is not runnable: has=%v err=%v", has, err)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v err=%v", missing, err)
	}
}
