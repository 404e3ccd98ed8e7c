package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocktake-backend/internal/auth"
	"github.com/angelmondragon/stocktake-backend/internal/catalog"
	"github.com/angelmondragon/stocktake-backend/internal/projection"
	"github.com/angelmondragon/stocktake-backend/internal/records"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	pkgAuth "github.com/angelmondragon/stocktake-backend/pkg/auth"
	"github.com/angelmondragon/stocktake-backend/pkg/auth/session"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/spreadsheet"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubSessions struct{}

func (stubSessions) HasSession(ctx context.Context, accessID string) (bool, error) {
	return true, nil
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func (stubAuthService) Refresh(ctx context.Context, req auth.RefreshRequest) (*auth.TokenPair, error) {
	return &auth.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
}

func (stubAuthService) Logout(ctx context.Context, accessID string) error { return nil }

func (stubAuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req auth.ChangePasswordRequest) error {
	return nil
}

type stubUsers struct {
	updated     users.UpdateInput
	deleteActor uuid.UUID
	deleteID    uuid.UUID
}

func (stubUsers) Create(ctx context.Context, actorID uuid.UUID, input users.CreateInput) (*users.UserDTO, error) {
	return &users.UserDTO{ID: uuid.New(), Name: input.Name, Role: input.Role}, nil
}

func (stubUsers) Get(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	return &users.UserDTO{ID: id, Name: "wang"}, nil
}

func (stubUsers) List(ctx context.Context, role *enums.Role) ([]users.UserDTO, error) {
	return []users.UserDTO{}, nil
}

func (stubUsers) EnsureAdmin(ctx context.Context, name, password string) (*users.UserDTO, error) {
	return nil, nil
}

func (s *stubUsers) Update(ctx context.Context, actorID, id uuid.UUID, input users.UpdateInput) (*users.UserDTO, error) {
	s.updated = input
	return &users.UserDTO{ID: id, Name: "wang"}, nil
}

func (s *stubUsers) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete your own account")
	}
	s.deleteActor, s.deleteID = actorID, id
	return nil
}

type stubCatalog struct {
	ingested *catalog.IngestInput
}

func (s *stubCatalog) Ingest(ctx context.Context, input catalog.IngestInput) (*catalog.IngestResult, error) {
	s.ingested = &input
	return &catalog.IngestResult{InsertedCount: len(input.Rows)}, nil
}

func (s *stubCatalog) Purge(ctx context.Context, day time.Time, actorID uuid.UUID) (*catalog.PurgeResult, error) {
	return &catalog.PurgeResult{Day: calendar.FormatDay(day)}, nil
}

func (s *stubCatalog) ListItems(ctx context.Context, params catalog.ListParams) (*catalog.ListResult, error) {
	return &catalog.ListResult{}, nil
}

func (s *stubCatalog) GetItem(ctx context.Context, id uuid.UUID) (*models.CatalogItem, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "missing")
}

type stubRecords struct {
	lastActor  records.Actor
	lastFilter records.ListFilter
	batchErr   error
}

func (s *stubRecords) Create(ctx context.Context, actor records.Actor, itemID uuid.UUID, qty decimal.Decimal) (*records.RecordDTO, error) {
	s.lastActor = actor
	return &records.RecordDTO{ID: uuid.New(), UserID: actor.UserID, CatalogItemID: itemID, ActualQuantity: qty, Status: enums.RecordStatusDraft}, nil
}

func (s *stubRecords) Update(ctx context.Context, recordID uuid.UUID, actor records.Actor, qty decimal.Decimal) (*records.RecordDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeSubmitted, "record already submitted")
}

func (s *stubRecords) Delete(ctx context.Context, recordID uuid.UUID, actor records.Actor) error {
	return nil
}

func (s *stubRecords) Submit(ctx context.Context, recordID uuid.UUID, actor records.Actor) (*records.RecordDTO, error) {
	return &records.RecordDTO{ID: recordID, Status: enums.RecordStatusSubmitted}, nil
}

func (s *stubRecords) SubmitBatch(ctx context.Context, ids []uuid.UUID, actor records.Actor) (*records.BatchResult, error) {
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return &records.BatchResult{Count: len(ids)}, nil
}

func (s *stubRecords) Get(ctx context.Context, recordID uuid.UUID, requester *uuid.UUID) (*records.RecordDTO, error) {
	return &records.RecordDTO{ID: recordID}, nil
}

func (s *stubRecords) List(ctx context.Context, actor records.Actor, filter records.ListFilter) (*records.ListResult, error) {
	s.lastActor = actor
	s.lastFilter = filter
	return &records.ListResult{Items: []records.RecordDTO{}}, nil
}

type stubProjection struct {
	gridUser      *uuid.UUID
	progressStart *time.Time
}

func (s *stubProjection) Worklist(ctx context.Context, userID uuid.UUID) (*projection.Worklist, error) {
	return &projection.Worklist{Day: "2024-06-01", UserName: "wang", Items: []projection.ItemView{}}, nil
}

func (s *stubProjection) StatusGrid(ctx context.Context, start, end *time.Time, userID *uuid.UUID) (*projection.StatusGrid, error) {
	s.gridUser = userID
	return &projection.StatusGrid{Rows: []projection.GridRow{}}, nil
}

func (s *stubProjection) Summary(ctx context.Context, start, end *time.Time) (*projection.Summary, error) {
	return &projection.Summary{}, nil
}

func (s *stubProjection) Progress(ctx context.Context, start, end *time.Time) (*projection.Progress, error) {
	s.progressStart = start
	return &projection.Progress{Users: []projection.UserProgress{}, Workshops: []projection.WorkshopProgress{}}, nil
}

type fixture struct {
	handler    http.Handler
	cfg        *config.Config
	catalog    *stubCatalog
	records    *stubRecords
	projection *stubProjection
	users      *stubUsers
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
		Stocktake: config.StocktakeConfig{MaxUploadMB: 1},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	f := &fixture{
		cfg:        testConfig(),
		catalog:    &stubCatalog{},
		records:    &stubRecords{},
		projection: &stubProjection{},
		users:      &stubUsers{},
	}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	f.handler = NewRouter(Deps{
		Config:      f.cfg,
		Logger:      logg,
		Calendar:    calendar.New(loc),
		DBPinger:    stubPinger{},
		RedisPinger: stubPinger{},
		Sessions:    stubSessions{},
		Auth:        stubAuthService{},
		Users:       f.users,
		Catalog:     f.catalog,
		Records:     f.records,
		Projection:  f.projection,
	})
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request, role enums.Role, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+buildToken(t, f.cfg, role, userID))
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestProtectedRoutesRejectMissingJWT(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/v1/worklist", "/api/v1/records", "/api/admin/v1/summary"} {
		resp := f.do(t, httptest.NewRequest(http.MethodGet, path, nil), "", uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/summary", nil), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/summary", nil), enums.RoleAdmin, uuid.New())
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil), "", uuid.Nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-Stocktake-Env"))
}

func TestRecordCreateUsesCallerIdentity(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	body := `{"catalog_item_id":"` + uuid.NewString() + `","actual_quantity":"10.5"}`

	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(body)), enums.RoleWorker, userID)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, userID, f.records.lastActor.UserID)
	assert.False(t, f.records.lastActor.IsAdmin)

	var payload struct {
		Data records.RecordDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.True(t, payload.Data.ActualQuantity.Equal(decimal.RequireFromString("10.5")))
}

func TestRecordCreateRequiresQuantity(t *testing.T) {
	f := newFixture(t)
	body := `{"catalog_item_id":"` + uuid.NewString() + `"}`
	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(body)), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRecordUpdateAfterSubmitIsConflict(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/records/"+uuid.NewString(), strings.NewReader(`{"actual_quantity":"3"}`))
	resp := f.do(t, req, enums.RoleWorker, uuid.New())

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), string(pkgerrors.CodeSubmitted))
}

func TestRecordListForcesWorkerToSelf(t *testing.T) {
	f := newFixture(t)
	self := uuid.New()
	other := uuid.New()

	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?user_id="+other.String()+"&status=draft", nil), enums.RoleWorker, self)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, f.records.lastFilter.UserID)
	assert.Equal(t, self, *f.records.lastFilter.UserID)
	require.NotNil(t, f.records.lastFilter.Status)
	assert.Equal(t, enums.RecordStatusDraft, *f.records.lastFilter.Status)

	resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?user_id="+other.String(), nil), enums.RoleAdmin, self)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, other, *f.records.lastFilter.UserID)
}

func TestRecordListRejectsBadStatus(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/records?status=closed", nil), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStatusGridScopesWorkers(t *testing.T) {
	f := newFixture(t)
	self := uuid.New()

	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status-grid?start=2024-06-01&end=2024-06-02", nil), enums.RoleWorker, self)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, f.projection.gridUser)
	assert.Equal(t, self, *f.projection.gridUser)

	resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status-grid", nil), enums.RoleAdmin, self)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, f.projection.gridUser)
}

func TestBatchSubmitPartialCarriesMissingIDs(t *testing.T) {
	f := newFixture(t)
	missing := uuid.NewString()
	f.records.batchErr = pkgerrors.New(pkgerrors.CodePartial, "1 record(s) not found").
		WithDetails(map[string]any{"missingIds": []string{missing}})

	body := `{"record_ids":["` + missing + `"]}`
	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/records/batch/submit", strings.NewReader(body)), enums.RoleWorker, uuid.New())

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), missing)
}

func TestCatalogUploadParsesWorkbook(t *testing.T) {
	f := newFixture(t)
	content, err := spreadsheet.Write("catalog", catalog.TemplateHeaders, []spreadsheet.Row{
		{"姓名": "wang", "车间": "W1", "区域": "A", "物料编码": "M-1", "物料名称": "bolt", "单位": "pcs"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "catalog.xlsx")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("upload_date", "2024-06-01"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/catalog/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := f.do(t, req, enums.RoleAdmin, uuid.New())

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.NotNil(t, f.catalog.ingested)
	require.Len(t, f.catalog.ingested.Rows, 1)
	assert.Equal(t, "M-1", f.catalog.ingested.Rows[0]["物料编码"])
	require.NotNil(t, f.catalog.ingested.TargetDay)
	assert.Equal(t, "2024-06-01", calendar.FormatDay(*f.catalog.ingested.TargetDay))
}

func TestCatalogUploadRejectsNonWorkbook(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "catalog.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("a,b,c"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/catalog/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := f.do(t, req, enums.RoleAdmin, uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCatalogPurgeParsesDay(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/v1/catalog/days/2024-06-01", nil), enums.RoleAdmin, uuid.New())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), "2024-06-01")

	resp = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/v1/catalog/days/june", nil), enums.RoleAdmin, uuid.New())
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCatalogTemplateDownload(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/catalog/template", nil), enums.RoleAdmin, uuid.New())
	require.Equal(t, http.StatusOK, resp.Code)

	rows, err := spreadsheet.ReadRows(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLoginFailureIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"name":"wang","password":"nope"}`)), "", uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestChangePasswordRequiresBearer(t *testing.T) {
	f := newFixture(t)
	body := `{"old_password":"old-secret","new_password":"new-secret"}`

	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(body)), "", uuid.Nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(body)), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminUserManagementRoutes(t *testing.T) {
	f := newFixture(t)
	admin := uuid.New()
	target := uuid.New()
	path := "/api/admin/v1/users/" + target.String()

	resp := f.do(t, httptest.NewRequest(http.MethodGet, path, nil), enums.RoleAdmin, admin)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"workshop":"二车间","is_active":false}`)), enums.RoleAdmin, admin)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, f.users.updated.Workshop)
	assert.Equal(t, "二车间", *f.users.updated.Workshop)
	require.NotNil(t, f.users.updated.IsActive)
	assert.False(t, *f.users.updated.IsActive)
	assert.Nil(t, f.users.updated.Name)

	resp = f.do(t, httptest.NewRequest(http.MethodPatch, path, strings.NewReader(`{"role":"owner"}`)), enums.RoleAdmin, admin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodDelete, path, nil), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodDelete, path, nil), enums.RoleAdmin, admin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, admin, f.users.deleteActor)
	assert.Equal(t, target, f.users.deleteID)

	resp = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/admin/v1/users/"+admin.String(), nil), enums.RoleAdmin, admin)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/users/not-a-uuid", nil), enums.RoleAdmin, admin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProgressRouteParsesRange(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/progress?start=2024-06-01", nil), enums.RoleWorker, uuid.New())
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, httptest.NewRequest(http.MethodGet, "/api/admin/v1/progress?start=2024-06-01", nil), enums.RoleAdmin, uuid.New())
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, f.projection.progressStart)
	assert.Equal(t, "2024-06-01", f.projection.progressStart.Format("2006-01-02"))
}

func buildToken(t *testing.T, cfg *config.Config, role enums.Role, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Name:   "tester",
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
