package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// User represents a person who counts stock or administers the catalog.
// Name doubles as the join key onto CatalogItem.OwnerName.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name         string     `gorm:"column:name;type:text;not null;uniqueIndex"`
	Workshop     string     `gorm:"column:workshop;type:text;not null;default:''"`
	Role         enums.Role `gorm:"column:role;type:text;not null;default:'worker'"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
