package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

func TestSinkPersistsEvent(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	sink := NewSink(SinkParams{Repo: repo})

	actor := uuid.New()
	recordID := uuid.NewString()
	sink.Record(context.Background(), Event{
		ActorID:      actor,
		Action:       enums.AuditRecordSubmitted,
		ResourceType: enums.AuditResourceRecord,
		ResourceID:   recordID,
		Details:      map[string]any{"quantity": "12.5"},
	})

	rows, err := repo.ListByResource(context.Background(), enums.AuditResourceRecord, recordID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.AuditRecordSubmitted, rows[0].Action)
	assert.Equal(t, enums.AuditStatusSuccess, rows[0].Status)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, actor, *rows[0].ActorID)

	var details map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Details, &details))
	assert.Equal(t, "12.5", details["quantity"])
}

type failingRepo struct{ calls int }

func (f *failingRepo) WithTx(*gorm.DB) Repository { return f }
func (f *failingRepo) Create(context.Context, *models.AuditLog) error {
	f.calls++
	return errors.New("audit store down")
}
func (f *failingRepo) ListByResource(context.Context, enums.AuditResource, string) ([]models.AuditLog, error) {
	return nil, nil
}

type countingMetrics struct{ actions []string }

func (c *countingMetrics) IncAuditFailure(action string) { c.actions = append(c.actions, action) }

func TestSinkSwallowsFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	repo := &failingRepo{}
	metrics := &countingMetrics{}
	sink := NewSink(SinkParams{Repo: repo, Logger: logg, Metrics: metrics})

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), Event{Action: enums.AuditCatalogIngested, ResourceType: enums.AuditResourceCatalog})
	})
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, []string{"catalog.ingested"}, metrics.actions)
	assert.Contains(t, buf.String(), "failed to record audit event")
}
