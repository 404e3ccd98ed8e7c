package records

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// Actor is the pre-validated identity performing an operation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// RecordDTO is the transport shape of a count record.
type RecordDTO struct {
	ID             uuid.UUID          `json:"id"`
	UserID         uuid.UUID          `json:"user_id"`
	CatalogItemID  uuid.UUID          `json:"catalog_item_id"`
	ActualQuantity decimal.Decimal    `json:"actual_quantity"`
	Status         enums.RecordStatus `json:"status"`
	RecordedAt     time.Time          `json:"recorded_at"`
	SubmittedAt    *time.Time         `json:"submitted_at,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// BatchResult reports the outcome of a batch submission.
type BatchResult struct {
	Count            int `json:"count"`
	AlreadySubmitted int `json:"already_submitted"`
}

// ListFilter narrows the record listing. Day bounds are inclusive.
type ListFilter struct {
	UserID   *uuid.UUID
	Status   *enums.RecordStatus
	StartDay *time.Time
	EndDay   *time.Time
	Limit    int
	Cursor   string
}

// ListResult wraps a page of records.
type ListResult struct {
	Items  []RecordDTO `json:"items"`
	Cursor string      `json:"cursor"`
	Total  int64       `json:"total"`
}

func FromModel(r *models.CountRecord) *RecordDTO {
	if r == nil {
		return nil
	}
	return &RecordDTO{
		ID:             r.ID,
		UserID:         r.UserID,
		CatalogItemID:  r.CatalogItemID,
		ActualQuantity: r.ActualQuantity,
		Status:         r.Status,
		RecordedAt:     r.RecordedAt,
		SubmittedAt:    r.SubmittedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
