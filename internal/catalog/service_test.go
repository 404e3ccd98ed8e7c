package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocktake-backend/internal/audit"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/db"
	"github.com/angelmondragon/stocktake-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

var (
	day1 = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (Service, *db.Client, *recordingSink) {
	t.Helper()
	client := dbtest.Open(t)
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	cal := calendar.New(loc).WithClock(func() time.Time {
		return time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	})
	sink := &recordingSink{}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(client.DB()),
		DB:        client,
		Calendar:  cal,
		Audit:     sink,
		BatchSize: 2,
	})
	require.NoError(t, err)
	return svc, client, sink
}

func countItems(t *testing.T, client *db.Client, day time.Time) []models.CatalogItem {
	t.Helper()
	var items []models.CatalogItem
	require.NoError(t, client.DB().Where("upload_date = ?", day).Order("material_code").Find(&items).Error)
	return items
}

func TestIngestReplacesDayBucketOnly(t *testing.T) {
	svc, client, sink := newTestService(t)
	ctx := context.Background()
	admin := uuid.New()

	_, err := svc.Ingest(ctx, IngestInput{
		UploadedBy: admin,
		TargetDay:  &day2,
		Rows:       []map[string]string{chineseRow("alice", "A", "OTHER", "kept")},
	})
	require.NoError(t, err)

	first, err := svc.Ingest(ctx, IngestInput{
		UploadedBy: admin,
		Rows: []map[string]string{
			chineseRow("alice", "A", "M-1", "bolt"),
			chineseRow("alice", "A", "M-2", "nut"),
			chineseRow("bob", "B", "M-3", "washer"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", first.UploadDate)
	assert.Equal(t, 3, first.InsertedCount)
	assert.Equal(t, int64(0), first.ReplacedCount)

	second, err := svc.Ingest(ctx, IngestInput{
		UploadedBy: admin,
		TargetDay:  &day1,
		Rows: []map[string]string{
			chineseRow("alice", "A", "M-9", "first"),
			chineseRow("alice", "A", "M-9", "dup"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, second.InsertedCount)
	assert.Equal(t, int64(3), second.ReplacedCount)
	assert.Equal(t, 2, second.TotalRows)
	assert.Equal(t, 1, second.UniqueRows)

	items := countItems(t, client, day1)
	require.Len(t, items, 1)
	assert.Equal(t, "M-9", items[0].MaterialCode)
	assert.Equal(t, "first", items[0].MaterialName)
	assert.Equal(t, admin, items[0].UploadedBy)

	other := countItems(t, client, day2)
	require.Len(t, other, 1)
	assert.Equal(t, "kept", other[0].MaterialName)

	require.Len(t, sink.events, 3)
	assert.Equal(t, enums.AuditCatalogIngested, sink.events[2].Action)
	assert.Equal(t, "2024-03-10", sink.events[2].ResourceID)
}

func TestIngestCascadesRecordsOfReplacedItems(t *testing.T) {
	svc, client, _ := newTestService(t)
	ctx := context.Background()
	admin := uuid.New()

	_, err := svc.Ingest(ctx, IngestInput{UploadedBy: admin, Rows: []map[string]string{chineseRow("alice", "A", "M-1", "bolt")}})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, IngestInput{UploadedBy: admin, TargetDay: &day2, Rows: []map[string]string{chineseRow("alice", "A", "M-1", "bolt")}})
	require.NoError(t, err)

	today := countItems(t, client, day1)[0]
	tomorrow := countItems(t, client, day2)[0]
	for _, itemID := range []uuid.UUID{today.ID, tomorrow.ID} {
		require.NoError(t, client.DB().Create(&models.CountRecord{
			ID:             uuid.New(),
			UserID:         uuid.New(),
			CatalogItemID:  itemID,
			ActualQuantity: decimal.NewFromInt(4),
			Status:         enums.RecordStatusDraft,
			RecordedAt:     time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}).Error)
	}

	res, err := svc.Ingest(ctx, IngestInput{UploadedBy: admin, Rows: []map[string]string{chineseRow("alice", "A", "M-2", "nut")}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.DeletedRecords)

	var remaining []models.CountRecord
	require.NoError(t, client.DB().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, tomorrow.ID, remaining[0].CatalogItemID)
}

func TestIngestInvalidBatchLeavesDayUntouched(t *testing.T) {
	svc, client, sink := newTestService(t)
	ctx := context.Background()
	admin := uuid.New()

	_, err := svc.Ingest(ctx, IngestInput{UploadedBy: admin, Rows: []map[string]string{chineseRow("alice", "A", "M-1", "bolt")}})
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, IngestInput{UploadedBy: admin, Rows: []map[string]string{chineseRow("alice", "A", "", "bolt")}})
	require.Error(t, err)

	assert.Len(t, countItems(t, client, day1), 1)
	assert.Len(t, sink.events, 1)
}

func TestPurgeRemovesDayAndRecords(t *testing.T) {
	svc, client, sink := newTestService(t)
	ctx := context.Background()
	admin := uuid.New()

	_, err := svc.Ingest(ctx, IngestInput{UploadedBy: admin, Rows: []map[string]string{
		chineseRow("alice", "A", "M-1", "bolt"),
		chineseRow("alice", "A", "M-2", "nut"),
	}})
	require.NoError(t, err)
	item := countItems(t, client, day1)[0]
	require.NoError(t, client.DB().Create(&models.CountRecord{
		ID: uuid.New(), UserID: uuid.New(), CatalogItemID: item.ID,
		ActualQuantity: decimal.NewFromInt(1), Status: enums.RecordStatusSubmitted,
		RecordedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}).Error)

	res, err := svc.Purge(ctx, day1, admin)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", res.Day)
	assert.Equal(t, int64(2), res.DeletedItems)
	assert.Equal(t, int64(1), res.DeletedRecords)
	assert.Empty(t, countItems(t, client, day1))
	assert.Equal(t, enums.AuditCatalogPurged, sink.events[len(sink.events)-1].Action)
}

func TestListItemsPaginates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rows := []map[string]string{}
	for _, code := range []string{"M-1", "M-2", "M-3"} {
		rows = append(rows, chineseRow("alice", "A", code, code))
	}
	rows = append(rows, map[string]string{"姓名": "bob", "车间": "二车间", "区域": "B", "物料编码": "M-4", "物料名称": "x", "单位": "kg"})
	_, err := svc.Ingest(ctx, IngestInput{UploadedBy: uuid.New(), Rows: rows})
	require.NoError(t, err)

	page, err := svc.ListItems(ctx, ListParams{OwnerName: "alice", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	next, err := svc.ListItems(ctx, ListParams{OwnerName: "alice", Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.Cursor)

	seen := map[uuid.UUID]bool{}
	for _, it := range append(page.Items, next.Items...) {
		seen[it.ID] = true
	}
	assert.Len(t, seen, 3)

	byWorkshop, err := svc.ListItems(ctx, ListParams{Workshop: "二车间"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byWorkshop.Total)
}

func TestGetItemNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetItem(context.Background(), uuid.New())
	require.Error(t, err)
}
