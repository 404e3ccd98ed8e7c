package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type fakeAuditPruner struct {
	cutoff time.Time
	err    error
}

func (f *fakeAuditPruner) DeleteAuditBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func testLogger() *logger.Logger { return logger.New(logger.Options{ServiceName: "maintenance-test"}) }

func TestAuditRetentionJobUsesWindow(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	repo := &fakeAuditPruner{}
	job, err := NewAuditRetentionJob(AuditRetentionJobParams{
		Logger:        testLogger(),
		DB:            passthroughTx{},
		Repository:    repo,
		RetentionDays: 30,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	require.Equal(t, "audit-retention", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC), repo.cutoff)
}

func TestAuditRetentionJobWrapsErrors(t *testing.T) {
	job, err := NewAuditRetentionJob(AuditRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: &fakeAuditPruner{err: errors.New("boom")},
	})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "audit retention")
}

func TestCatalogRetentionDisabledByDefault(t *testing.T) {
	job, err := NewCatalogRetentionJob(CatalogRetentionJobParams{})
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestCatalogRetentionPurgesAgedDays(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 3, 0, 0, 0, time.UTC)
	cal := calendar.New(time.UTC).WithClock(func() time.Time { return now })

	owner := models.User{ID: uuid.New(), Name: "li", Role: enums.RoleWorker, PasswordHash: "x"}
	require.NoError(t, client.DB().Create(&owner).Error)

	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	item := func(d int, code string) models.CatalogItem {
		return models.CatalogItem{
			ID: uuid.New(), OwnerName: owner.Name, Workshop: "W1", Area: "A", MaterialCode: code,
			MaterialName: code, Unit: "pcs", UploadedBy: owner.ID, UploadDate: day(d), UploadedAt: now,
		}
	}
	old, edge, fresh := item(1, "M1"), item(3, "M2"), item(9, "M3")
	require.NoError(t, client.DB().Create([]models.CatalogItem{old, edge, fresh}).Error)

	record := func(it models.CatalogItem) models.CountRecord {
		return models.CountRecord{
			ID: uuid.New(), UserID: owner.ID, CatalogItemID: it.ID, ActualQuantity: decimal.NewFromInt(4),
			Status: enums.RecordStatusDraft, RecordedAt: now, UpdatedAt: now,
		}
	}
	require.NoError(t, client.DB().Create([]models.CountRecord{record(old), record(fresh)}).Error)

	job, err := NewCatalogRetentionJob(CatalogRetentionJobParams{
		Logger:        testLogger(),
		DB:            client,
		Repository:    NewRetentionRepository(),
		Calendar:      cal,
		RetentionDays: 7,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(ctx))

	var items []models.CatalogItem
	require.NoError(t, client.DB().Order("upload_date").Find(&items).Error)
	require.Len(t, items, 2)
	require.Equal(t, edge.ID, items[0].ID)
	require.Equal(t, fresh.ID, items[1].ID)

	var records []models.CountRecord
	require.NoError(t, client.DB().Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, fresh.ID, records[0].CatalogItemID)
}

func TestRetentionRepositoryDeletesOldAudit(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	entries := []models.AuditLog{
		{ID: uuid.New(), Action: enums.AuditCatalogIngested, ResourceType: enums.AuditResourceCatalog, Status: enums.AuditStatusSuccess, CreatedAt: cutoff.Add(-time.Hour)},
		{ID: uuid.New(), Action: enums.AuditCatalogIngested, ResourceType: enums.AuditResourceCatalog, Status: enums.AuditStatusSuccess, CreatedAt: cutoff.Add(time.Hour)},
	}
	require.NoError(t, client.DB().Create(&entries).Error)

	var deleted int64
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = NewRetentionRepository().DeleteAuditBefore(ctx, tx, cutoff)
		return err
	}))
	require.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, client.DB().Model(&models.AuditLog{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}
