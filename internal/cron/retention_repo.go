package cron

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
)

// RetentionRepository deletes aged rows. Every call runs on the supplied
// transaction handle.
type RetentionRepository struct{}

func NewRetentionRepository() RetentionRepository { return RetentionRepository{} }

func (RetentionRepository) DeleteAuditBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

// DeleteCatalogBefore removes every catalog day strictly older than day along
// with the count records that reference those items.
func (RetentionRepository) DeleteCatalogBefore(ctx context.Context, tx *gorm.DB, day time.Time) (int64, int64, error) {
	db := tx.WithContext(ctx)
	aged := db.Model(&models.CatalogItem{}).Select("id").Where("upload_date < ?", day)
	recs := db.Where("catalog_item_id IN (?)", aged).Delete(&models.CountRecord{})
	if recs.Error != nil {
		return 0, 0, recs.Error
	}
	items := db.Where("upload_date < ?", day).Delete(&models.CatalogItem{})
	if items.Error != nil {
		return 0, 0, items.Error
	}
	return items.RowsAffected, recs.RowsAffected, nil
}
