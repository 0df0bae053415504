package realtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

// Publisher is the send side of a job bus.
type Publisher interface {
	Publish(ctx context.Context, msg JobEvent) error
}

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

type jobNotifier struct {
	log *logger.Logger
	pub Publisher
}

// NewJobNotifier publishes job lifecycle events. A nil publisher yields a no-op notifier.
func NewJobNotifier(log *logger.Logger, pub Publisher) JobNotifier {
	if pub == nil {
		return nopNotifier{}
	}
	return &jobNotifier{log: log.With("service", "JobNotifier"), pub: pub}
}

func (n *jobNotifier) send(ev JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.log.Warn("job event publish failed", "event", string(ev.Event), "job_id", ev.JobID, "error", err)
	}
}

func baseEvent(event JobEventType, userID uuid.UUID, job *types.JobRun) JobEvent {
	ev := JobEvent{Event: event, OwnerUserID: userID, At: time.Now().UTC()}
	if job != nil {
		ev.JobID = job.ID
		ev.JobType = job.JobType
		ev.EntityType = job.EntityType
		ev.EntityID = job.EntityID
		ev.Status = job.Status
		ev.Stage = job.Stage
		ev.Progress = job.Progress
		ev.Message = job.Message
	}
	return ev
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.JobRun) {
	n.send(baseEvent(EventJobCreated, userID, job))
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	ev := baseEvent(EventJobProgress, userID, job)
	ev.Stage = stage
	ev.Progress = progress
	ev.Message = message
	n.send(ev)
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	ev := baseEvent(EventJobFailed, userID, job)
	ev.Stage = stage
	ev.Error = errorMessage
	n.send(ev)
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	n.send(baseEvent(EventJobDone, userID, job))
}

type nopNotifier struct{}

func (nopNotifier) JobCreated(uuid.UUID, *types.JobRun)                       {}
func (nopNotifier) JobProgress(uuid.UUID, *types.JobRun, string, int, string) {}
func (nopNotifier) JobFailed(uuid.UUID, *types.JobRun, string, string)        {}
func (nopNotifier) JobDone(uuid.UUID, *types.JobRun)                          {}
