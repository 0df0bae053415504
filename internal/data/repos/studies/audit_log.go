package studies

import (
	"gorm.io/gorm"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
)

type AuditLogRepo interface {
	Create(dbc dbctx.Context, entry *types.AuditLog) error
	ListByResource(dbc dbctx.Context, resource string, resourceID string) ([]*types.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{
		db:  db,
		log: baseLog.With("repo", "AuditLogRepo"),
	}
}

func (r *auditLogRepo) Create(dbc dbctx.Context, entry *types.AuditLog) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Context()).Create(entry).Error
}

func (r *auditLogRepo) ListByResource(dbc dbctx.Context, resource string, resourceID string) ([]*types.AuditLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AuditLog
	if err := transaction.WithContext(dbc.Context()).
		Where("resource = ? AND resource_id = ?", resource, resourceID).
		Order("timestamp ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
