package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/medicore-backend/internal/domain"
)

func SeedPatient(tb testing.TB, ctx context.Context, tx *gorm.DB, mrn string) *types.Patient {
	tb.Helper()
	p := &types.Patient{
		ID:                  uuid.New(),
		MedicalRecordNumber: mrn,
		FirstNameEncrypted:  []byte("enc-first"),
		LastNameEncrypted:   []byte("enc-last"),
		Gender:              "O",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed patient: %v", err)
	}
	return p
}

func SeedStudy(tb testing.TB, ctx context.Context, tx *gorm.DB, patientID uuid.UUID, sopUID string) *types.Study {
	tb.Helper()
	s := &types.Study{
		ID:                uuid.New(),
		PatientID:         patientID,
		StudyInstanceUID:  "1.2.3.4",
		SeriesInstanceUID: "1.2.3.4.1",
		SOPInstanceUID:    sopUID,
		Modality:          "CT",
		S3Bucket:          "test-bucket",
		S3Key:             "studies/1.2.3.4/" + sopUID + ".dcm",
		ProcessingStatus:  types.StudyStatusPending,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed study: %v", err)
	}
	return s
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
