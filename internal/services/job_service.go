package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/apierr"
	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/realtime"
)

// Task states reported to API clients.
const (
	TaskPending = "pending"
	TaskStarted = "started"
	TaskSuccess = "success"
	TaskFailure = "failure"
	TaskRetry   = "retry"
)

// StageDispatch is the stage a run is failed at when its workflow could not be
// started.
const StageDispatch = "dispatch"

type TaskStatus struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Result any    `json:"result"`
}

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	Status(dbc dbctx.Context, jobID uuid.UUID) (*TaskStatus, error)
	RedispatchFailed(dbc dbctx.Context, minAge time.Duration) (int, error)
}

// TemporalDispatch selects the Temporal execution backend. Without it jobs
// stay in job_run for the polling worker pool.
type TemporalDispatch struct {
	Client        temporalsdkclient.Client
	TaskQueue     string
	MaxAttempts   int
	RetryInterval time.Duration
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify realtime.JobNotifier

	maxAttempts int
	temporal    *TemporalDispatch
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify realtime.JobNotifier,
	maxAttempts int,
	td *TemporalDispatch,
) JobService {
	if td != nil && td.Client == nil {
		td = nil
	}
	if notify == nil {
		notify = realtime.NewJobNotifier(baseLog, nil)
	}
	return &jobService{
		db:          db,
		log:         baseLog.With("service", "JobService"),
		repo:        repo,
		notify:      notify,
		maxAttempts: maxAttempts,
		temporal:    td,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	// Inside a real transaction the row is invisible to workers until commit;
	// callers must Dispatch afterwards.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// gorm.DB values are cloned freely, so pointer comparison cannot detect a
// transaction; the underlying ConnPool can.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch announces a committed job. With the Temporal backend it also starts
// the job_run workflow; a start failure marks the job failed.
func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	ctx := dbc.Context()

	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	s.notify.JobCreated(job.OwnerUserID, job)

	if s.temporal == nil {
		return nil
	}

	err = s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, jobID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         StageDispatch,
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	job.Status = types.JobStatusFailed
	s.notify.JobFailed(job.OwnerUserID, job, StageDispatch, err.Error())
	return fmt.Errorf("start temporal workflow: %w", err)
}

// RedispatchFailed retries workflow starts for runs failed at the dispatch
// stage at least minAge ago. Without the Temporal backend it does nothing: the
// poller already picks those runs up.
func (s *jobService) RedispatchFailed(dbc dbctx.Context, minAge time.Duration) (int, error) {
	if s.temporal == nil {
		return 0, nil
	}
	ctx := dbc.Context()
	stranded, err := s.repo.ListFailedAtStage(dbctx.Context{Ctx: ctx}, StageDispatch, s.attempts(), time.Now().UTC().Add(-minAge), 50)
	if err != nil {
		return 0, fmt.Errorf("list failed dispatches: %w", err)
	}
	n := 0
	for _, job := range stranded {
		now := time.Now().UTC()
		ok, err := s.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, job.ID,
			[]string{types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusCanceled},
			map[string]interface{}{
				"status":     types.JobStatusQueued,
				"stage":      "queued",
				"message":    "Queued",
				"error":      "",
				"updated_at": now,
			})
		if err != nil || !ok {
			continue
		}
		if err := s.Dispatch(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
			s.log.Warn("Job redispatch failed", "job_id", job.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("Redispatched stranded jobs", "count", n)
	}
	return n, nil
}

func (s *jobService) attempts() int {
	if s.maxAttempts < 1 {
		return 3
	}
	return s.maxAttempts
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	tq := strings.TrimSpace(s.temporal.TaskQueue)
	if tq == "" {
		tq = "medicore"
	}
	attempts := s.temporal.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	interval := s.temporal.RetryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    interval,
			BackoffCoefficient: 1.0,
			MaximumInterval:    interval,
			MaximumAttempts:    int32(attempts),
		},
	}
	_, err := s.temporal.Client.ExecuteWorkflow(ctx, opts, "job_run")
	return err
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, apierr.InvalidInput("missing task id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	job, err := s.repo.GetByID(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound("Task not found")
	}
	return job, nil
}

// Status maps the job_run state onto the task vocabulary clients poll:
// queued -> pending, running -> started, succeeded -> success,
// failed with attempts left -> retry, otherwise failed/canceled -> failure.
func (s *jobService) Status(dbc dbctx.Context, jobID uuid.UUID) (*TaskStatus, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	return TaskStatusFromJob(job, s.attempts()), nil
}

// TaskStatusFromJob reports a failed run that the queue will still retry as
// retry rather than failure. maxAttempts < 1 treats every failure as final.
func TaskStatusFromJob(job *types.JobRun, maxAttempts int) *TaskStatus {
	out := &TaskStatus{TaskID: job.ID.String()}
	switch job.Status {
	case types.JobStatusQueued:
		out.Status = TaskPending
	case types.JobStatusRunning:
		out.Status = TaskStarted
	case types.JobStatusSucceeded:
		out.Status = TaskSuccess
		if len(job.Result) > 0 {
			var res any
			if err := json.Unmarshal(job.Result, &res); err == nil {
				out.Result = res
			}
		}
	case types.JobStatusFailed, types.JobStatusCanceled:
		out.Status = TaskFailure
		if job.Status == types.JobStatusFailed && job.Attempts < maxAttempts {
			out.Status = TaskRetry
		}
		if job.Error != "" {
			out.Result = job.Error
		}
	default:
		out.Status = TaskPending
	}
	return out
}
