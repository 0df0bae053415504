package studies

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Study is one ingested DICOM instance. The storage locator (S3Bucket, S3Key)
// is written once at creation; only the processing fields change afterwards.
type Study struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID uuid.UUID `gorm:"type:uuid;not null;index" json:"patient_id"`

	StudyInstanceUID  string `gorm:"column:study_instance_uid;not null;index;uniqueIndex:idx_study_series_sop" json:"study_instance_uid"`
	SeriesInstanceUID string `gorm:"column:series_instance_uid;not null;uniqueIndex:idx_study_series_sop" json:"series_instance_uid"`
	SOPInstanceUID    string `gorm:"column:sop_instance_uid;not null;uniqueIndex;uniqueIndex:idx_study_series_sop" json:"sop_instance_uid"`

	Modality         string     `gorm:"column:modality;not null;index" json:"modality"`
	StudyDate        *time.Time `gorm:"column:study_date" json:"study_date,omitempty"`
	StudyTime        string     `gorm:"column:study_time" json:"study_time,omitempty"`
	StudyDescription string     `gorm:"column:study_description" json:"study_description,omitempty"`
	InstitutionName  string     `gorm:"column:institution_name" json:"institution_name,omitempty"`
	Manufacturer     string     `gorm:"column:manufacturer" json:"manufacturer,omitempty"`

	S3Bucket     string `gorm:"column:s3_bucket;not null" json:"s3_bucket"`
	S3Key        string `gorm:"column:s3_key;not null" json:"s3_key"`
	PreviewS3Key string `gorm:"column:preview_s3_key" json:"preview_s3_key,omitempty"`

	ProcessingStatus ProcessingStatus `gorm:"column:processing_status;not null;default:pending;index" json:"processing_status"`
	ProcessingError  string           `gorm:"column:processing_error" json:"processing_error,omitempty"`
	ProcessedAt      *time.Time       `gorm:"column:processed_at" json:"processed_at,omitempty"`
	QualityMetrics   datatypes.JSON   `gorm:"column:quality_metrics" json:"quality_metrics,omitempty"`

	UploadedBy *uuid.UUID `gorm:"type:uuid;column:uploaded_by;index" json:"uploaded_by,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Study) TableName() string { return "dicom_studies" }

func (s *Study) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ProcessingStatus == "" {
		s.ProcessingStatus = StatusPending
	}
	return nil
}
