// Package catalog owns the per-day snapshot of countable items.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/audit"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/db"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/metrics"
	"github.com/angelmondragon/stocktake-backend/pkg/pagination"
)

// Service defines catalog ingestion and browsing.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	Purge(ctx context.Context, day time.Time, actorID uuid.UUID) (*PurgeResult, error)
	ListItems(ctx context.Context, params ListParams) (*ListResult, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// IngestInput carries one uploaded batch.
type IngestInput struct {
	Rows       []map[string]string
	UploadedBy uuid.UUID
	TargetDay  *time.Time
}

// IngestResult summarises a replaced day bucket.
type IngestResult struct {
	InsertedCount  int    `json:"inserted_count"`
	ReplacedCount  int64  `json:"replaced_count"`
	UploadDate     string `json:"upload_date"`
	TotalRows      int    `json:"total_rows"`
	UniqueRows     int    `json:"unique_rows"`
	DeletedRecords int64  `json:"deleted_records"`
}

// PurgeResult summarises an administrative day deletion.
type PurgeResult struct {
	Day            string `json:"day"`
	DeletedItems   int64  `json:"deleted_items"`
	DeletedRecords int64  `json:"deleted_records"`
}

// ListParams filters the administrator catalog browser.
type ListParams struct {
	Day       *time.Time
	Workshop  string
	OwnerName string
	Limit     int
	Cursor    string
}

// ListResult wraps a page of catalog items.
type ListResult struct {
	Day    string               `json:"day"`
	Items  []models.CatalogItem `json:"items"`
	Cursor string               `json:"cursor"`
	Total  int64                `json:"total"`
}

type service struct {
	repo      Repository
	tx        txRunner
	calendar  *calendar.Calendar
	audit     audit.Sink
	logg      *logger.Logger
	metrics   *metrics.WorkflowMetrics
	batchSize int
}

// ServiceParams groups catalog dependencies.
type ServiceParams struct {
	Repo      Repository
	DB        txRunner
	Calendar  *calendar.Calendar
	Audit     audit.Sink
	Logger    *logger.Logger
	Metrics   *metrics.WorkflowMetrics
	BatchSize int
}

// NewService wires catalog dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Calendar == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "calendar required")
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	return &service{
		repo:      params.Repo,
		tx:        params.DB,
		calendar:  params.Calendar,
		audit:     sink,
		logg:      params.Logger,
		metrics:   params.Metrics,
		batchSize: params.BatchSize,
	}, nil
}

func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if input.UploadedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploader id required")
	}
	parsed, err := ParseRows(input.Rows)
	if err != nil {
		return nil, err
	}

	day := s.calendar.Today()
	if input.TargetDay != nil {
		day = s.calendar.Normalize(*input.TargetDay)
	}

	started := time.Now()
	uploadedAt := s.calendar.Now()
	items := make([]models.CatalogItem, len(parsed.Rows))
	for i, row := range parsed.Rows {
		items[i] = models.CatalogItem{
			ID:           uuid.New(),
			OwnerName:    row.OwnerName,
			Workshop:     row.Workshop,
			Area:         row.Area,
			MaterialCode: row.MaterialCode,
			MaterialName: row.MaterialName,
			Unit:         row.Unit,
			UploadedBy:   input.UploadedBy,
			UploadDate:   day,
			UploadedAt:   uploadedAt,
		}
	}

	result := &IngestResult{
		InsertedCount: len(items),
		UploadDate:    calendar.FormatDay(day),
		TotalRows:     parsed.TotalRows,
		UniqueRows:    len(items),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		deletedRecords, err := repo.DeleteRecordsForDay(ctx, day)
		if err != nil {
			return err
		}
		replaced, err := repo.DeleteDay(ctx, day)
		if err != nil {
			return err
		}
		if err := repo.InsertBatch(ctx, items, s.batchSize); err != nil {
			return err
		}
		result.DeletedRecords = deletedRecords
		result.ReplacedCount = replaced
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "catalog for this day is being replaced concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace catalog day")
	}

	s.metrics.ObserveIngest(len(items), parsed.Duplicates, time.Since(started))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"upload_date":     result.UploadDate,
			"inserted":        result.InsertedCount,
			"replaced":        result.ReplacedCount,
			"deleted_records": result.DeletedRecords,
		})
		s.logg.Info(logCtx, "catalog day ingested")
	}
	s.audit.Record(ctx, audit.Event{
		ActorID:      input.UploadedBy,
		Action:       enums.AuditCatalogIngested,
		ResourceType: enums.AuditResourceCatalog,
		ResourceID:   result.UploadDate,
		Details: map[string]any{
			"inserted_count":  result.InsertedCount,
			"replaced_count":  result.ReplacedCount,
			"total_rows":      result.TotalRows,
			"unique_rows":     result.UniqueRows,
			"deleted_records": result.DeletedRecords,
		},
	})
	return result, nil
}

func (s *service) Purge(ctx context.Context, day time.Time, actorID uuid.UUID) (*PurgeResult, error) {
	day = s.calendar.Normalize(day)
	result := &PurgeResult{Day: calendar.FormatDay(day)}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		records, err := repo.DeleteRecordsForDay(ctx, day)
		if err != nil {
			return err
		}
		items, err := repo.DeleteDay(ctx, day)
		if err != nil {
			return err
		}
		result.DeletedRecords = records
		result.DeletedItems = items
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge catalog day")
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:      actorID,
		Action:       enums.AuditCatalogPurged,
		ResourceType: enums.AuditResourceCatalog,
		ResourceID:   result.Day,
		Details: map[string]any{
			"deleted_items":   result.DeletedItems,
			"deleted_records": result.DeletedRecords,
		},
	})
	return result, nil
}

func (s *service) ListItems(ctx context.Context, params ListParams) (*ListResult, error) {
	day := s.calendar.Today()
	if params.Day != nil {
		day = s.calendar.Normalize(*params.Day)
	}
	query := listItemsParams{
		Day:       day,
		Workshop:  params.Workshop,
		OwnerName: params.OwnerName,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	items, next, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog items")
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Day: calendar.FormatDay(day), Items: items, Cursor: cursor, Total: total}, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeItemNotFound, "catalog item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
	}
	return item, nil
}
