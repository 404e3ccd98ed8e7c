// Package audit records an append-only trail of mutating operations.
//
// Recording is best effort: a failing sink is logged and never changes the
// outcome of the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

// Event describes one audited operation.
type Event struct {
	ActorID      uuid.UUID
	Action       enums.AuditAction
	ResourceType enums.AuditResource
	ResourceID   string
	Details      map[string]any
	Failed       bool
}

// Sink accepts audit events. Implementations must not surface errors.
type Sink interface {
	Record(ctx context.Context, event Event)
}

type failureCounter interface {
	IncAuditFailure(action string)
}

type dbSink struct {
	repo    Repository
	logg    *logger.Logger
	metrics failureCounter
	now     func() time.Time
}

// SinkParams wires the database sink.
type SinkParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics failureCounter
	Now     func() time.Time
}

// NewSink returns a Sink that writes to the audit_logs table.
func NewSink(params SinkParams) Sink {
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &dbSink{repo: params.Repo, logg: params.Logger, metrics: params.Metrics, now: now}
}

func (s *dbSink) Record(ctx context.Context, event Event) {
	entry, err := s.toModel(event)
	if err == nil {
		err = s.repo.Create(ctx, entry)
	}
	if err == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.IncAuditFailure(string(event.Action))
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"audit_action":   string(event.Action),
			"audit_resource": string(event.ResourceType),
			"audit_id":       event.ResourceID,
		})
		s.logg.Error(logCtx, "failed to record audit event", err)
	}
}

func (s *dbSink) toModel(event Event) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:           uuid.New(),
		Action:       event.Action,
		ResourceType: event.ResourceType,
		Status:       enums.AuditStatusSuccess,
		CreatedAt:    s.now().UTC(),
	}
	if event.Failed {
		entry.Status = enums.AuditStatusFailure
	}
	if event.ActorID != uuid.Nil {
		actor := event.ActorID
		entry.ActorID = &actor
	}
	if event.ResourceID != "" {
		id := event.ResourceID
		entry.ResourceID = &id
	}
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return nil, err
		}
		entry.Details = datatypes.JSON(raw)
	}
	return entry, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
