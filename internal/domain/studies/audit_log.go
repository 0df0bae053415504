package studies

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditActionStudyUpload = "study.upload"
	AuditResourceStudy     = "study"
)

type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	Action     string         `gorm:"column:action;not null;index" json:"action"`
	Resource   string         `gorm:"column:resource;not null" json:"resource"`
	ResourceID string         `gorm:"column:resource_id;index" json:"resource_id,omitempty"`
	Details    datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	IPAddress  string         `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent  string         `gorm:"column:user_agent" json:"user_agent,omitempty"`
	Timestamp  time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
