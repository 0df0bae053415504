package studies

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

// ErrDuplicateInstance is returned when a study with the same SOP instance UID already exists.
var ErrDuplicateInstance = errors.New("study with this SOP instance UID already exists")

type StudyRepo interface {
	Create(dbc dbctx.Context, study *types.Study) (*types.Study, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Study, error)
	ExistsBySOPInstanceUID(dbc dbctx.Context, sopInstanceUID string) (bool, error)
	MarkProcessing(dbc dbctx.Context, id uuid.UUID) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, metrics datatypes.JSON, previewKey string, processedAt time.Time) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, detail string) error
	CountBySOPInstanceUID(dbc dbctx.Context, sopInstanceUID string) (int64, error)
}

type studyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyRepo(db *gorm.DB, baseLog *logger.Logger) StudyRepo {
	return &studyRepo{
		db:  db,
		log: baseLog.With("repo", "StudyRepo"),
	}
}

func (r *studyRepo) Create(dbc dbctx.Context, study *types.Study) (*types.Study, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if study == nil {
		return nil, errors.New("nil study")
	}
	if err := transaction.WithContext(dbc.Context()).Create(study).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateInstance
		}
		return nil, err
	}
	return study, nil
}

// GetByID returns (nil, nil) when no row matches.
func (r *studyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Study, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Study
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *studyRepo) ExistsBySOPInstanceUID(dbc dbctx.Context, sopInstanceUID string) (bool, error) {
	n, err := r.CountBySOPInstanceUID(dbc, sopInstanceUID)
	return n > 0, err
}

func (r *studyRepo) CountBySOPInstanceUID(dbc dbctx.Context, sopInstanceUID string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Context()).
		Model(&types.Study{}).
		Where("sop_instance_uid = ?", sopInstanceUID).
		Count(&count).Error
	return count, err
}

// MarkProcessing clears results from any previous run so a re-run starts clean.
func (r *studyRepo) MarkProcessing(dbc dbctx.Context, id uuid.UUID) error {
	return r.updateStatus(dbc, id, map[string]interface{}{
		"processing_status": types.StudyStatusProcessing,
		"processing_error":  "",
	})
}

func (r *studyRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, metrics datatypes.JSON, previewKey string, processedAt time.Time) error {
	return r.updateStatus(dbc, id, map[string]interface{}{
		"processing_status": types.StudyStatusCompleted,
		"processing_error":  "",
		"quality_metrics":   metrics,
		"preview_s3_key":    previewKey,
		"processed_at":      processedAt.UTC(),
	})
}

func (r *studyRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, detail string) error {
	return r.updateStatus(dbc, id, map[string]interface{}{
		"processing_status": types.StudyStatusFailed,
		"processing_error":  detail,
	})
}

// updateStatus only ever touches processing columns; the storage locator is immutable.
func (r *studyRepo) updateStatus(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return errors.New("missing study id")
	}
	updates["updated_at"] = time.Now().UTC()
	res := transaction.WithContext(dbc.Context()).
		Model(&types.Study{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
