package projection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/repo"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
)

// Repository reads catalog and record state for the projections.
type Repository interface {
	ItemsForOwner(ctx context.Context, day time.Time, ownerName string) ([]models.CatalogItem, error)
	ItemsInRange(ctx context.Context, start, end time.Time, ownerName *string) ([]models.CatalogItem, error)
	RecordsForItems(ctx context.Context, itemIDs []uuid.UUID, userID *uuid.UUID) ([]models.CountRecord, error)
	ItemCountsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopCount, error)
	RecordCountsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopStatusCount, error)
	CountedItemsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopCount, error)
	RecordCountsByUser(ctx context.Context, start, end time.Time) ([]userStatusCount, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a read-only projection repository.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

type workshopCount struct {
	Workshop string
	Count    int64
}

type workshopStatusCount struct {
	Workshop string
	Status   string
	Records  int64
	Items    int64
}

type userStatusCount struct {
	UserID  uuid.UUID
	Status  string
	Records int64
}

const idChunkSize = 500

func (r *repositoryImpl) ItemsForOwner(ctx context.Context, day time.Time, ownerName string) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	err := r.DB(ctx).
		Where("upload_date = ? AND owner_name = ?", day, ownerName).
		Order("area ASC, material_name ASC, material_code ASC").
		Find(&items).Error
	return items, err
}

func (r *repositoryImpl) ItemsInRange(ctx context.Context, start, end time.Time, ownerName *string) ([]models.CatalogItem, error) {
	query := r.DB(ctx).Where("upload_date >= ? AND upload_date <= ?", start, end)
	if ownerName != nil {
		query = query.Where("owner_name = ?", *ownerName)
	}
	var items []models.CatalogItem
	err := query.
		Order("upload_date ASC, workshop ASC, owner_name ASC, area ASC, material_code ASC").
		Find(&items).Error
	return items, err
}

// RecordsForItems loads every record pointing at the items, optionally
// restricted to one user. Large id sets are queried in chunks.
func (r *repositoryImpl) RecordsForItems(ctx context.Context, itemIDs []uuid.UUID, userID *uuid.UUID) ([]models.CountRecord, error) {
	var out []models.CountRecord
	for start := 0; start < len(itemIDs); start += idChunkSize {
		end := start + idChunkSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}
		query := r.DB(ctx).Where("catalog_item_id IN ?", itemIDs[start:end])
		if userID != nil {
			query = query.Where("user_id = ?", *userID)
		}
		var chunk []models.CountRecord
		if err := query.Find(&chunk).Error; err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (r *repositoryImpl) ItemCountsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopCount, error) {
	var rows []workshopCount
	err := r.DB(ctx).
		Model(&models.CatalogItem{}).
		Select("workshop, COUNT(*) AS count").
		Where("upload_date >= ? AND upload_date <= ?", start, end).
		Group("workshop").
		Scan(&rows).Error
	return rows, err
}

func (r *repositoryImpl) RecordCountsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopStatusCount, error) {
	var rows []workshopStatusCount
	err := r.DB(ctx).
		Table("count_records AS cr").
		Select("ci.workshop AS workshop, cr.status AS status, COUNT(*) AS records, COUNT(DISTINCT cr.catalog_item_id) AS items").
		Joins("JOIN catalog_items AS ci ON ci.id = cr.catalog_item_id").
		Where("ci.upload_date >= ? AND ci.upload_date <= ?", start, end).
		Group("ci.workshop, cr.status").
		Scan(&rows).Error
	return rows, err
}

func (r *repositoryImpl) CountedItemsByWorkshop(ctx context.Context, start, end time.Time) ([]workshopCount, error) {
	var rows []workshopCount
	err := r.DB(ctx).
		Table("count_records AS cr").
		Select("ci.workshop AS workshop, COUNT(DISTINCT cr.catalog_item_id) AS count").
		Joins("JOIN catalog_items AS ci ON ci.id = cr.catalog_item_id").
		Where("ci.upload_date >= ? AND ci.upload_date <= ?", start, end).
		Group("ci.workshop").
		Scan(&rows).Error
	return rows, err
}

// RecordCountsByUser counts records per owner and status for items uploaded
// in the range.
func (r *repositoryImpl) RecordCountsByUser(ctx context.Context, start, end time.Time) ([]userStatusCount, error) {
	var rows []userStatusCount
	err := r.DB(ctx).
		Table("count_records AS cr").
		Select("cr.user_id AS user_id, cr.status AS status, COUNT(*) AS records").
		Joins("JOIN catalog_items AS ci ON ci.id = cr.catalog_item_id").
		Where("ci.upload_date >= ? AND ci.upload_date <= ?", start, end).
		Group("cr.user_id, cr.status").
		Scan(&rows).Error
	return rows, err
}
