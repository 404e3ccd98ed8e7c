// Package records owns the draft/submitted lifecycle of count records.
package records

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// Service defines the record lifecycle operations.
type Service interface {
	Create(ctx context.Context, actor Actor, itemID uuid.UUID, qty decimal.Decimal) (*RecordDTO, error)
	Update(ctx context.Context, recordID uuid.UUID, actor Actor, qty decimal.Decimal) (*RecordDTO, error)
	Delete(ctx context.Context, recordID uuid.UUID, actor Actor) error
	Submit(ctx context.Context, recordID uuid.UUID, actor Actor) (*RecordDTO, error)
	SubmitBatch(ctx context.Context, ids []uuid.UUID, actor Actor) (*BatchResult, error)
	Get(ctx context.Context, recordID uuid.UUID, requester *uuid.UUID) (*RecordDTO, error)
	List(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	tx       txRunner
	calendar *calendar.Calendar
	audit    audit.Sink
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
}

// ServiceParams groups record lifecycle dependencies.
type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Calendar *calendar.Calendar
	Audit    audit.Sink
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "records repository required")
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
		repo:     params.Repo,
		tx:       params.DB,
		calendar: params.Calendar,
		audit:    sink,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

var errDraftRace = errors.New("draft inserted concurrently")

// Create saves the caller's count for an item. An existing draft for the same
// pair is overwritten in place; a submitted record blocks the save.
func (s *service) Create(ctx context.Context, actor Actor, itemID uuid.UUID, qty decimal.Decimal) (*RecordDTO, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity required")
	}

	var (
		saved   *models.CountRecord
		updated bool
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		saved, updated, err = s.upsertDraft(ctx, actor.UserID, itemID, qty)
		if !errors.Is(err, errDraftRace) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errDraftRace) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "draft is being saved concurrently")
		}
		return nil, boundary(err, "save draft")
	}

	action := enums.AuditRecordCreated
	transition := "created"
	if updated {
		action = enums.AuditRecordUpdated
		transition = "updated"
	}
	s.metrics.IncTransition(transition)
	s.audit.Record(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       action,
		ResourceType: enums.AuditResourceRecord,
		ResourceID:   saved.ID.String(),
		Details: map[string]any{
			"catalog_item_id": itemID.String(),
			"actual_quantity": qty.String(),
		},
	})
	return FromModel(saved), nil
}

func (s *service) upsertDraft(ctx context.Context, userID, itemID uuid.UUID, qty decimal.Decimal) (*models.CountRecord, bool, error) {
	var (
		saved   *models.CountRecord
		updated bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		exists, err := repo.ItemExists(ctx, itemID)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeItemNotFound, "catalog item not found")
		}

		pair, err := repo.LockPair(ctx, userID, itemID)
		if err != nil {
			return err
		}
		var draft *models.CountRecord
		for i := range pair {
			if pair[i].IsSubmitted() {
				return pkgerrors.New(pkgerrors.CodeSubmitted, "a submitted record already exists for this item")
			}
			draft = &pair[i]
		}

		now := s.calendar.Now()
		if draft != nil {
			if _, err := repo.UpdateQuantity(ctx, draft.ID, qty, &now, now); err != nil {
				return err
			}
			draft.ActualQuantity = qty
			draft.RecordedAt = now
			draft.UpdatedAt = now
			saved, updated = draft, true
			return nil
		}

		record := &models.CountRecord{
			ID:             uuid.New(),
			UserID:         userID,
			CatalogItemID:  itemID,
			ActualQuantity: qty,
			Status:         enums.RecordStatusDraft,
			RecordedAt:     now,
			UpdatedAt:      now,
		}
		if err := repo.Create(ctx, record); err != nil {
			if db.IsUniqueViolation(err, "count_records_owner_item_status_key") {
				return errDraftRace
			}
			return err
		}
		saved = record
		return nil
	})
	return saved, updated, err
}

func (s *service) Update(ctx context.Context, recordID uuid.UUID, actor Actor, qty decimal.Decimal) (*RecordDTO, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "record belongs to another user")
	}
	if record.IsSubmitted() {
		return nil, pkgerrors.New(pkgerrors.CodeSubmitted, "submitted records cannot be edited")
	}

	now := s.calendar.Now()
	affected, err := s.repo.UpdateQuantity(ctx, record.ID, qty, nil, now)
	if err != nil {
		return nil, boundary(err, "update record")
	}
	if affected == 0 {
		return nil, s.lostDraft(ctx, record.ID, "submitted records cannot be edited")
	}
	record.ActualQuantity = qty
	record.UpdatedAt = now

	s.metrics.IncTransition("updated")
	s.audit.Record(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       enums.AuditRecordUpdated,
		ResourceType: enums.AuditResourceRecord,
		ResourceID:   record.ID.String(),
		Details:      map[string]any{"actual_quantity": qty.String()},
	})
	return FromModel(record), nil
}

// Delete removes a record. Owners may delete their own drafts; administrators
// may delete any record regardless of status.
func (s *service) Delete(ctx context.Context, recordID uuid.UUID, actor Actor) error {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return err
	}

	var affected int64
	if actor.IsAdmin {
		affected, err = s.repo.Delete(ctx, record.ID)
	} else {
		if record.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "record belongs to another user")
		}
		if record.IsSubmitted() {
			return pkgerrors.New(pkgerrors.CodeSubmitted, "submitted records cannot be deleted")
		}
		affected, err = s.repo.DeleteDraft(ctx, record.ID)
	}
	if err != nil {
		return boundary(err, "delete record")
	}
	if affected == 0 {
		if actor.IsAdmin {
			return pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
		}
		return s.lostDraft(ctx, record.ID, "submitted records cannot be deleted")
	}

	s.metrics.IncTransition("deleted")
	s.audit.Record(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       enums.AuditRecordDeleted,
		ResourceType: enums.AuditResourceRecord,
		ResourceID:   record.ID.String(),
		Details: map[string]any{
			"owner_id": record.UserID.String(),
			"status":   string(record.Status),
		},
	})
	return nil
}

func (s *service) Submit(ctx context.Context, recordID uuid.UUID, actor Actor) (*RecordDTO, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "record belongs to another user")
	}
	if record.IsSubmitted() {
		return nil, pkgerrors.New(pkgerrors.CodeSubmitted, "record already submitted")
	}

	now := s.calendar.Now()
	affected, err := s.repo.MarkSubmitted(ctx, []uuid.UUID{record.ID}, now)
	if err != nil {
		return nil, boundary(err, "submit record")
	}
	if affected == 0 {
		return nil, s.lostDraft(ctx, record.ID, "record already submitted")
	}
	record.Status = enums.RecordStatusSubmitted
	record.SubmittedAt = &now
	record.UpdatedAt = now

	s.metrics.IncTransition("submitted")
	s.audit.Record(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       enums.AuditRecordSubmitted,
		ResourceType: enums.AuditResourceRecord,
		ResourceID:   record.ID.String(),
	})
	return FromModel(record), nil
}

// SubmitBatch submits every listed draft owned by the caller in one
// transaction. Any id the caller does not own rejects the whole batch; the
// owned rows stay locked between the resolve and the filtered update.
func (s *service) SubmitBatch(ctx context.Context, ids []uuid.UUID, actor Actor) (*BatchResult, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "record ids are required")
	}

	var (
		result  *BatchResult
		missing []string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		owned, err := repo.FindOwned(ctx, actor.UserID, unique, true)
		if err != nil {
			return err
		}
		if len(owned) < len(unique) {
			missing = missingIDs(unique, owned)
			return nil
		}

		drafts := make([]uuid.UUID, 0, len(owned))
		submitted := 0
		for _, r := range owned {
			if r.IsSubmitted() {
				submitted++
				continue
			}
			drafts = append(drafts, r.ID)
		}
		affected, err := repo.MarkSubmitted(ctx, drafts, s.calendar.Now())
		if err != nil {
			return err
		}
		result = &BatchResult{Count: int(affected), AlreadySubmitted: submitted}
		return nil
	})
	if err != nil {
		return nil, boundary(err, "submit batch")
	}
	if missing != nil {
		return nil, pkgerrors.New(pkgerrors.CodePartial, "some records were not found").
			WithDetails(map[string]any{"missingIds": missing})
	}

	if result.Count > 0 {
		s.metrics.AddTransitions("submitted", result.Count)
		s.audit.Record(ctx, audit.Event{
			ActorID:      actor.UserID,
			Action:       enums.AuditRecordBatchSubmitted,
			ResourceType: enums.AuditResourceRecord,
			Details: map[string]any{
				"requested":         len(unique),
				"count":             result.Count,
				"already_submitted": result.AlreadySubmitted,
			},
		})
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":           actor.UserID.String(),
			"count":             result.Count,
			"already_submitted": result.AlreadySubmitted,
		})
		s.logg.Info(logCtx, "record batch submitted")
	}
	return result, nil
}

// Get loads a record. A nil requester is the administrator view.
func (s *service) Get(ctx context.Context, recordID uuid.UUID, requester *uuid.UUID) (*RecordDTO, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if requester != nil && record.UserID != *requester {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "record belongs to another user")
	}
	return FromModel(record), nil
}

func (s *service) List(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error) {
	params := listParams{
		UserID: filter.UserID,
		Status: filter.Status,
		Limit:  filter.Limit,
	}
	if !actor.IsAdmin {
		self := actor.UserID
		params.UserID = &self
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if filter.StartDay != nil || filter.EndDay != nil {
		start := filter.StartDay
		if start == nil {
			start = filter.EndDay
		}
		rng, err := s.calendar.Resolve(start, filter.EndDay)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date range")
		}
		from, to := s.calendar.Instants(rng)
		params.From, params.To = &from, &to
	}
	cursor, err := pagination.ParseCursor(filter.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Cursor = cursor

	rows, next, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, boundary(err, "list records")
	}
	result := &ListResult{Items: make([]RecordDTO, 0, len(rows)), Total: total}
	for i := range rows {
		result.Items = append(result.Items, *FromModel(&rows[i]))
	}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.CountRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "record not found")
		}
		return nil, boundary(err, "load record")
	}
	return record, nil
}

// lostDraft explains a conditional write that matched no row: the record was
// either submitted or deleted after it was loaded.
func (s *service) lostDraft(ctx context.Context, id uuid.UUID, submittedMsg string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeSubmitted, submittedMsg)
}

func validateQuantity(qty decimal.Decimal) error {
	if qty.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "actual quantity must not be negative").
			WithDetails(map[string]any{"field": "actual_quantity"})
	}
	return nil
}

// boundary keeps typed errors and wraps raw store failures.
func boundary(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []uuid.UUID, owned []models.CountRecord) []string {
	found := make(map[uuid.UUID]struct{}, len(owned))
	for _, r := range owned {
		found[r.ID] = struct{}{}
	}
	missing := make([]string, 0, len(requested)-len(owned))
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	sort.Strings(missing)
	return missing
}
