package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/repo"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/pagination"
)

// Repository exposes persistence helpers for catalog items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DeleteRecordsForDay(ctx context.Context, day time.Time) (int64, error)
	DeleteDay(ctx context.Context, day time.Time) (int64, error)
	InsertBatch(ctx context.Context, items []models.CatalogItem, batchSize int) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error)
	List(ctx context.Context, params listItemsParams) ([]models.CatalogItem, *pagination.Cursor, int64, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type listItemsParams struct {
	Day       time.Time
	Workshop  string
	OwnerName string
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

// DeleteRecordsForDay removes every count record that points at an item in the
// day bucket. It must run before DeleteDay.
func (r *repositoryImpl) DeleteRecordsForDay(ctx context.Context, day time.Time) (int64, error) {
	db := r.DB(ctx)
	sub := db.Model(&models.CatalogItem{}).Select("id").Where("upload_date = ?", day)
	result := db.Where("catalog_item_id IN (?)", sub).Delete(&models.CountRecord{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) DeleteDay(ctx context.Context, day time.Time) (int64, error) {
	result := r.DB(ctx).Where("upload_date = ?", day).Delete(&models.CatalogItem{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) InsertBatch(ctx context.Context, items []models.CatalogItem, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return r.DB(ctx).CreateInBatches(items, batchSize).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listItemsParams) ([]models.CatalogItem, *pagination.Cursor, int64, error) {
	query := r.DB(ctx).Model(&models.CatalogItem{}).Where("upload_date = ?", params.Day)
	if params.Workshop != "" {
		query = query.Where("workshop = ?", params.Workshop)
	}
	if params.OwnerName != "" {
		query = query.Where("owner_name = ?", params.OwnerName)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, nil, 0, err
	}

	var items []models.CatalogItem
	if err := pagination.Keyset(query, "uploaded_at", params.Cursor, params.Limit).Find(&items).Error; err != nil {
		return nil, nil, 0, err
	}

	items, next := pagination.Trim(items, params.Limit, func(it models.CatalogItem) pagination.Cursor {
		return pagination.Cursor{At: it.UploadedAt, ID: it.ID}
	})
	return items, next, total, nil
}
