package db

import (
	"fmt"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Records
		&types.Patient{},
		&types.Study{},
		&types.AuditLog{},

		// Jobs / worker
		&types.JobRun{},
	)
}

func EnsureJobIndexes(db *gorm.DB) error {
	// Partial index backing ClaimNextRunnable's scan.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_runnable
		ON job_run (created_at)
		WHERE status IN ('queued', 'failed', 'running');
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_runnable: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dicom_studies_patient_created
		ON dicom_studies (patient_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_dicom_studies_patient_created: %w", err)
	}
	return nil
}
