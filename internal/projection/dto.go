package projection

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// ItemView is a catalog item joined with at most one count record. Record
// fields are nil when nobody has counted the item yet.
type ItemView struct {
	CatalogItemID  uuid.UUID           `json:"catalog_item_id"`
	UploadDate     string              `json:"upload_date"`
	OwnerName      string              `json:"owner_name"`
	Workshop       string              `json:"workshop"`
	Area           string              `json:"area"`
	MaterialCode   string              `json:"material_code"`
	MaterialName   string              `json:"material_name"`
	Unit           string              `json:"unit"`
	RecordID       *uuid.UUID          `json:"record_id"`
	ActualQuantity *decimal.Decimal    `json:"actual_quantity"`
	Status         *enums.RecordStatus `json:"status"`
	RecordedAt     *time.Time          `json:"recorded_at"`
	SubmittedAt    *time.Time          `json:"submitted_at"`
}

// GridRow is one status-grid line.
type GridRow struct {
	ItemView
	UserID   *uuid.UUID `json:"user_id"`
	UserName string     `json:"user_name"`
}

// Worklist is the caller's slice of today's catalog.
type Worklist struct {
	Day      string     `json:"day"`
	UserName string     `json:"user_name"`
	Items    []ItemView `json:"items"`
}

// StatusGrid is the administrator view across a day range.
type StatusGrid struct {
	StartDay string    `json:"start_day"`
	EndDay   string    `json:"end_day"`
	Rows     []GridRow `json:"rows"`
}

// WorkshopSummary aggregates one workshop's progress.
type WorkshopSummary struct {
	Workshop       string  `json:"workshop"`
	Items          int64   `json:"items"`
	CountedItems   int64   `json:"counted_items"`
	SubmittedItems int64   `json:"submitted_items"`
	Drafts         int64   `json:"drafts"`
	Submitted      int64   `json:"submitted"`
	CompletionRate float64 `json:"completion_rate"`
}

// Summary aggregates progress over a day range.
type Summary struct {
	StartDay       string            `json:"start_day"`
	EndDay         string            `json:"end_day"`
	Items          int64             `json:"items"`
	Records        int64             `json:"records"`
	Drafts         int64             `json:"drafts"`
	Submitted      int64             `json:"submitted"`
	CountedItems   int64             `json:"counted_items"`
	UncountedItems int64             `json:"uncounted_items"`
	SubmittedItems int64             `json:"submitted_items"`
	CompletionRate float64           `json:"completion_rate"`
	Workshops      []WorkshopSummary `json:"workshops"`
}

// UserProgress counts one user's records over a day range.
type UserProgress struct {
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	Workshop       string    `json:"workshop"`
	Total          int64     `json:"total"`
	Drafts         int64     `json:"drafts"`
	Submitted      int64     `json:"submitted"`
	CompletionRate float64   `json:"completion_rate"`
}

// WorkshopProgress sums UserProgress by the users' workshop.
type WorkshopProgress struct {
	Workshop         string  `json:"workshop"`
	Users            int64   `json:"users"`
	TotalRecords     int64   `json:"total_records"`
	SubmittedRecords int64   `json:"submitted_records"`
	CompletionRate   float64 `json:"completion_rate"`
}

// Progress is the per-user completion report.
type Progress struct {
	StartDay  string             `json:"start_day"`
	EndDay    string             `json:"end_day"`
	Users     []UserProgress     `json:"users"`
	Workshops []WorkshopProgress `json:"workshops"`
}

func viewOf(item models.CatalogItem, record *models.CountRecord) ItemView {
	view := ItemView{
		CatalogItemID: item.ID,
		UploadDate:    calendar.FormatDay(item.UploadDate),
		OwnerName:     item.OwnerName,
		Workshop:      item.Workshop,
		Area:          item.Area,
		MaterialCode:  item.MaterialCode,
		MaterialName:  item.MaterialName,
		Unit:          item.Unit,
	}
	if record != nil {
		id := record.ID
		qty := record.ActualQuantity
		status := record.Status
		recordedAt := record.RecordedAt
		view.RecordID = &id
		view.ActualQuantity = &qty
		view.Status = &status
		view.RecordedAt = &recordedAt
		view.SubmittedAt = record.SubmittedAt
	}
	return view
}
