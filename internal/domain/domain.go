package domain

import (
	"github.com/yungbote/medicore-backend/internal/domain/jobs"
	"github.com/yungbote/medicore-backend/internal/domain/studies"
)

type (
	Study            = studies.Study
	Patient          = studies.Patient
	AuditLog         = studies.AuditLog
	ProcessingStatus = studies.ProcessingStatus

	JobRun = jobs.JobRun
)

const (
	StudyStatusPending    = studies.StatusPending
	StudyStatusProcessing = studies.StatusProcessing
	StudyStatusCompleted  = studies.StatusCompleted
	StudyStatusFailed     = studies.StatusFailed

	AuditActionStudyUpload = studies.AuditActionStudyUpload
	AuditResourceStudy     = studies.AuditResourceStudy

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
	JobStatusCanceled  = jobs.StatusCanceled
)
