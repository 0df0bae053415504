package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (bool, error)
	ListFailedAtStage(dbc dbctx.Context, stage string, maxAttempts int, before time.Time, limit int) ([]*types.JobRun, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

func (r *jobRunRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Context())
	}
	return r.db.WithContext(dbc.Context())
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := r.conn(dbc).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetByID returns (nil, nil) when no row matches.
func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := r.conn(dbc).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNextRunnable atomically moves the oldest runnable job to running and
// bumps its attempt counter. Runnable means one of:
//   - queued
//   - failed with attempts left and past its retry delay
//   - running with a heartbeat older than staleRunning (its worker died)
//
// On Postgres concurrent claimers skip each other's locked rows.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.JobRun, error) {
	now := time.Now().UTC()
	var claimed *types.JobRun

	err := r.conn(dbc).Transaction(func(tx *gorm.DB) error {
		cond := tx.Session(&gorm.Session{NewDB: true})
		queued := cond.Where("status = ?", types.JobStatusQueued)
		retryable := cond.Where("status = ? AND attempts < ?", types.JobStatusFailed, maxAttempts).
			Where("last_error_at IS NULL OR last_error_at < ?", now.Add(-retryDelay))
		orphaned := cond.Where("status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?", types.JobStatusRunning, now.Add(-staleRunning))

		var job types.JobRun
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(queued.Or(retryable).Or(orphaned)).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		err = tx.Model(&types.JobRun{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":       types.JobStatusRunning,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_at":    now,
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
		if err != nil {
			return err
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		job.LockedAt, job.HeartbeatAt = &now, &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	_, err := r.UpdateFieldsUnlessStatus(dbc, id, nil, updates)
	return err
}

// UpdateFieldsUnlessStatus reports false when the row is missing or sits in one
// of disallowedStatuses.
func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := r.conn(dbc).Model(&types.JobRun{}).Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return r.conn(dbc).Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{"heartbeat_at": now, "updated_at": now}).Error
}

// HasRunnableForEntity guards against queueing a second run for an entity that
// already has one queued or in flight.
func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	if entityID == uuid.Nil || entityType == "" || jobType == "" {
		return false, nil
	}
	var count int64
	err := r.conn(dbc).Model(&types.JobRun{}).
		Where("entity_type = ? AND entity_id = ? AND job_type = ?", entityType, entityID, jobType).
		Where("status IN ?", []string{types.JobStatusQueued, types.JobStatusRunning}).
		Count(&count).Error
	return count > 0, err
}

// ListFailedAtStage returns failed runs that stopped at stage, still have
// attempts left, and last failed before the given time. Oldest first.
func (r *jobRunRepo) ListFailedAtStage(dbc dbctx.Context, stage string, maxAttempts int, before time.Time, limit int) ([]*types.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.JobRun
	err := r.conn(dbc).
		Where("status = ? AND stage = ? AND attempts < ?", types.JobStatusFailed, stage, maxAttempts).
		Where("last_error_at IS NULL OR last_error_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
