package repos

import (
	"github.com/yungbote/medicore-backend/internal/data/repos/jobs"
	"github.com/yungbote/medicore-backend/internal/data/repos/studies"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type StudyRepo = studies.StudyRepo
type PatientRepo = studies.PatientRepo
type AuditLogRepo = studies.AuditLogRepo

type JobRunRepo = jobs.JobRunRepo

var ErrDuplicateInstance = studies.ErrDuplicateInstance

func NewStudyRepo(db *gorm.DB, baseLog *logger.Logger) StudyRepo {
	return studies.NewStudyRepo(db, baseLog)
}
func NewPatientRepo(db *gorm.DB, baseLog *logger.Logger) PatientRepo {
	return studies.NewPatientRepo(db, baseLog)
}
func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return studies.NewAuditLogRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
