package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/repo"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// Repository persists audit entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByResource(ctx context.Context, resourceType enums.AuditResource, resourceID string) ([]models.AuditLog, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.DB(ctx).Create(entry).Error
}

func (r *repositoryImpl) ListByResource(ctx context.Context, resourceType enums.AuditResource, resourceID string) ([]models.AuditLog, error) {
	var rows []models.AuditLog
	err := r.DB(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
