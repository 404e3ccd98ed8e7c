package models

import (
	"time"

	"github.com/google/uuid"
)

// CatalogItem is one countable line of a day's stocktake snapshot.
type CatalogItem struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerName    string    `gorm:"column:owner_name;type:text;not null;uniqueIndex:catalog_items_day_owner_area_code_key,priority:2;index:catalog_items_owner_day_idx,priority:1"`
	Workshop     string    `gorm:"column:workshop;type:text;not null"`
	Area         string    `gorm:"column:area;type:text;not null;uniqueIndex:catalog_items_day_owner_area_code_key,priority:3"`
	MaterialCode string    `gorm:"column:material_code;type:text;not null;uniqueIndex:catalog_items_day_owner_area_code_key,priority:4"`
	MaterialName string    `gorm:"column:material_name;type:text;not null"`
	Unit         string    `gorm:"column:unit;type:text;not null"`
	UploadedBy   uuid.UUID `gorm:"column:uploaded_by;type:uuid;not null"`
	UploadDate   time.Time `gorm:"column:upload_date;type:date;not null;uniqueIndex:catalog_items_day_owner_area_code_key,priority:1;index:catalog_items_owner_day_idx,priority:2"`
	UploadedAt   time.Time `gorm:"column:uploaded_at;not null"`
}
