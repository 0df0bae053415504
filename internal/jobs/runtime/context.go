package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/realtime"
)

// Context is the handle a pipeline gets for one claimed job run. Progress,
// Fail and Succeed are the only state transitions a pipeline may make, and
// none of them touch a run that was canceled underneath it.
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *types.JobRun
	Repo   repos.JobRunRepo
	Notify realtime.JobNotifier

	payload map[string]any
}

// NewContext decodes the payload up front. A malformed payload decodes to an
// empty map; handlers validate the keys they need.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify realtime.JobNotifier) *Context {
	c := &Context{Ctx: ctxutil.Default(ctx), DB: db, Job: job, Repo: repo, Notify: notify}
	c.payload = decodePayload(job)

	traceID, _ := c.payload["trace_id"].(string)
	reqID, _ := c.payload["request_id"].(string)
	if td := (ctxutil.TraceData{TraceID: strings.TrimSpace(traceID), RequestID: strings.TrimSpace(reqID)}); td.TraceID != "" || td.RequestID != "" {
		c.Ctx = ctxutil.WithTraceData(c.Ctx, &td)
	}
	return c
}

func decodePayload(job *types.JobRun) map[string]any {
	m := map[string]any{}
	if job == nil || len(job.Payload) == 0 {
		return m
	}
	if err := json.Unmarshal(job.Payload, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID returns (uuid.Nil, false) for missing or malformed values.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s, ok := c.Payload()[key].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// transition persists updates unless the run was canceled, then mirrors them
// onto the in-memory row and emits the event. A cancellation of c.Ctx does not
// stop the write: a timed-out job still has to record its failure.
func (c *Context) transition(updates map[string]interface{}, apply func(j *types.JobRun), emit func(n realtime.JobNotifier, j *types.JobRun)) {
	if c == nil || c.Job == nil {
		return
	}
	if c.Repo != nil && c.Job.ID != uuid.Nil {
		dbc := dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbc, c.Job.ID, []string{types.JobStatusCanceled}, updates)
		if !ok {
			return
		}
	}
	apply(c.Job)
	if c.Notify != nil {
		emit(c.Notify, c.Job)
	}
}

// Progress records a non-terminal stage.
func (c *Context) Progress(stage string, pct int, msg string) {
	now := time.Now().UTC()
	c.transition(
		map[string]interface{}{"stage": stage, "progress": pct, "message": msg, "heartbeat_at": now, "updated_at": now},
		func(j *types.JobRun) {
			j.Stage, j.Progress, j.Message = stage, pct, msg
			j.HeartbeatAt, j.UpdatedAt = &now, now
		},
		func(n realtime.JobNotifier, j *types.JobRun) { n.JobProgress(j.OwnerUserID, j, stage, pct, msg) },
	)
}

// Fail marks the run failed and releases its lock so the queue may retry it.
func (c *Context) Fail(stage string, err error) {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.transition(
		map[string]interface{}{
			"status": types.JobStatusFailed, "stage": stage, "message": "", "error": msg,
			"last_error_at": now, "locked_at": nil, "updated_at": now,
		},
		func(j *types.JobRun) {
			j.Status, j.Stage, j.Message, j.Error = types.JobStatusFailed, stage, "", msg
			j.LastErrorAt, j.LockedAt, j.UpdatedAt = &now, nil, now
		},
		func(n realtime.JobNotifier, j *types.JobRun) { n.JobFailed(j.OwnerUserID, j, stage, msg) },
	)
}

// Succeed marks the run succeeded and stores result as JSON.
func (c *Context) Succeed(stage string, result any) {
	now := time.Now().UTC()
	var res datatypes.JSON
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	c.transition(
		map[string]interface{}{
			"status": types.JobStatusSucceeded, "stage": stage, "progress": 100, "message": "", "error": "",
			"result": res, "locked_at": nil, "heartbeat_at": now, "updated_at": now,
		},
		func(j *types.JobRun) {
			j.Status, j.Stage, j.Progress, j.Message, j.Error = types.JobStatusSucceeded, stage, 100, "", ""
			j.Result, j.LockedAt, j.HeartbeatAt, j.UpdatedAt = res, nil, &now, now
		},
		func(n realtime.JobNotifier, j *types.JobRun) { n.JobDone(j.OwnerUserID, j) },
	)
}
