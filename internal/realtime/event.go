package realtime

import (
	"time"

	"github.com/google/uuid"
)

type JobEventType string

const (
	EventJobCreated  JobEventType = "job_created"
	EventJobProgress JobEventType = "job_progress"
	EventJobFailed   JobEventType = "job_failed"
	EventJobDone     JobEventType = "job_done"
)

// JobEvent is the message carried on the job bus.
type JobEvent struct {
	Event       JobEventType `json:"event"`
	JobID       uuid.UUID    `json:"job_id"`
	JobType     string       `json:"job_type"`
	OwnerUserID uuid.UUID    `json:"owner_user_id"`
	EntityType  string       `json:"entity_type,omitempty"`
	EntityID    *uuid.UUID   `json:"entity_id,omitempty"`
	Status      string       `json:"status,omitempty"`
	Stage       string       `json:"stage,omitempty"`
	Progress    int          `json:"progress,omitempty"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	At          time.Time    `json:"at"`
}
