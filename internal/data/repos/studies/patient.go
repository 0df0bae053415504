package studies

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type PatientRepo interface {
	Create(dbc dbctx.Context, patient *types.Patient) (*types.Patient, error)
	Exists(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type patientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPatientRepo(db *gorm.DB, baseLog *logger.Logger) PatientRepo {
	return &patientRepo{
		db:  db,
		log: baseLog.With("repo", "PatientRepo"),
	}
}

func (r *patientRepo) Create(dbc dbctx.Context, patient *types.Patient) (*types.Patient, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Context()).Create(patient).Error; err != nil {
		return nil, err
	}
	return patient, nil
}

func (r *patientRepo) Exists(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Context()).
		Model(&types.Patient{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
