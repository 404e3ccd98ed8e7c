package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// AuditLog is an append-only trail of mutating operations.
type AuditLog struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ActorID      *uuid.UUID          `gorm:"column:actor_id;type:uuid;index"`
	Action       enums.AuditAction   `gorm:"column:action;type:text;not null;index"`
	ResourceType enums.AuditResource `gorm:"column:resource_type;type:text;not null"`
	ResourceID   *string             `gorm:"column:resource_id;type:text"`
	Details      datatypes.JSON      `gorm:"column:details"`
	Status       enums.AuditStatus   `gorm:"column:status;type:text;not null;default:'success'"`
	CreatedAt    time.Time           `gorm:"column:created_at;not null;index"`
}
