package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// CountRecord is a worker's observed quantity for one catalog item.
// The unique index allows at most one draft and one submitted row per pair.
type CountRecord struct {
	ID             uuid.UUID          `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex:count_records_owner_item_status_key,priority:1"`
	CatalogItemID  uuid.UUID          `gorm:"column:catalog_item_id;type:uuid;not null;uniqueIndex:count_records_owner_item_status_key,priority:2;index"`
	ActualQuantity decimal.Decimal    `gorm:"column:actual_quantity;type:numeric(12,3);not null"`
	Status         enums.RecordStatus `gorm:"column:status;type:text;not null;default:'draft';uniqueIndex:count_records_owner_item_status_key,priority:3"`
	RecordedAt     time.Time          `gorm:"column:recorded_at;not null;index"`
	SubmittedAt    *time.Time         `gorm:"column:submitted_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;not null"`
}

// IsSubmitted reports whether the record has left the editable state.
func (r CountRecord) IsSubmitted() bool {
	return r.Status == enums.RecordStatusSubmitted
}
