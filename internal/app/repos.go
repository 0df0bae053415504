package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type Repos struct {
	Studies  repos.StudyRepo
	Patients repos.PatientRepo
	Audit    repos.AuditLogRepo
	JobRuns  repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Studies:  repos.NewStudyRepo(db, log),
		Patients: repos.NewPatientRepo(db, log),
		Audit:    repos.NewAuditLogRepo(db, log),
		JobRuns:  repos.NewJobRunRepo(db, log),
	}
}
