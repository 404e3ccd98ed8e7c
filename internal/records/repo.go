package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/repo"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/pagination"
)

// Repository exposes persistence helpers for count records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.CountRecord, error)
	LockPair(ctx context.Context, userID, itemID uuid.UUID) ([]models.CountRecord, error)
	Create(ctx context.Context, record *models.CountRecord) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, qty decimal.Decimal, recordedAt *time.Time, at time.Time) (int64, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) (int64, error)
	ItemExists(ctx context.Context, itemID uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	MarkSubmitted(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
	FindOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, lock bool) ([]models.CountRecord, error)
	List(ctx context.Context, params listParams) ([]models.CountRecord, *pagination.Cursor, int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a record repository. Row locks are requested only on
// drivers that support SELECT ... FOR UPDATE.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type listParams struct {
	UserID *uuid.UUID
	Status *enums.RecordStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.CountRecord, error) {
	var record models.CountRecord
	if err := r.DB(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// LockPair loads every record of a (user, item) pair whatever its status and
// holds row locks on them until the transaction ends. Draft saves serialise
// on these rows so a submit cannot slip between the status check and the
// write.
func (r *repositoryImpl) LockPair(ctx context.Context, userID, itemID uuid.UUID) ([]models.CountRecord, error) {
	var rows []models.CountRecord
	err := r.ForUpdate(ctx).
		Where("user_id = ? AND catalog_item_id = ?", userID, itemID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) Create(ctx context.Context, record *models.CountRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.DB(ctx).Create(record).Error
}

// UpdateQuantity overwrites a draft's quantity. Submitted rows are never
// matched, so a zero count means the record left the draft state.
func (r *repositoryImpl) UpdateQuantity(ctx context.Context, id uuid.UUID, qty decimal.Decimal, recordedAt *time.Time, at time.Time) (int64, error) {
	updates := map[string]any{
		"actual_quantity": qty,
		"updated_at":      at,
	}
	if recordedAt != nil {
		updates["recorded_at"] = *recordedAt
	}
	result := r.DB(ctx).
		Model(&models.CountRecord{}).
		Where("id = ? AND status = ?", id, enums.RecordStatusDraft).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.DB(ctx).Where("id = ?", id).Delete(&models.CountRecord{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) DeleteDraft(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.DB(ctx).Where("id = ? AND status = ?", id, enums.RecordStatusDraft).Delete(&models.CountRecord{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ItemExists(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.CatalogItem{}).Where("id = ?", itemID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSubmitted flips every listed draft in one filtered statement. Rows that
// are no longer drafts are left untouched and not counted.
func (r *repositoryImpl) MarkSubmitted(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.DB(ctx).
		Model(&models.CountRecord{}).
		Where("id IN ? AND status = ?", ids, enums.RecordStatusDraft).
		Updates(map[string]any{
			"status":       enums.RecordStatusSubmitted,
			"submitted_at": at,
			"updated_at":   at,
		})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) FindOwned(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, lock bool) ([]models.CountRecord, error) {
	var rows []models.CountRecord
	if len(ids) == 0 {
		return rows, nil
	}
	query := r.DB(ctx)
	if lock {
		query = r.ForUpdate(ctx)
	}
	if err := query.Where("user_id = ? AND id IN ?", userID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listParams) ([]models.CountRecord, *pagination.Cursor, int64, error) {
	query := r.DB(ctx).Model(&models.CountRecord{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("recorded_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("recorded_at < ?", *params.To)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, nil, 0, err
	}

	var rows []models.CountRecord
	if err := pagination.Keyset(query, "recorded_at", params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, 0, err
	}

	rows, next := pagination.Trim(rows, params.Limit, func(rec models.CountRecord) pagination.Cursor {
		return pagination.Cursor{At: rec.RecordedAt, ID: rec.ID}
	})
	return rows, next, total, nil
}
