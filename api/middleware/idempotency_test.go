package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRequiresIdempotency(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    bool
	}{
		{"ingest", http.MethodPost, "/api/admin/v1/catalog/ingest", true},
		{"upload", http.MethodPost, "/api/admin/v1/catalog/upload", true},
		{"purge", http.MethodDelete, "/api/admin/v1/catalog/days/{day}", true},
		{"items listing", http.MethodGet, "/api/admin/v1/catalog/items", false},
		{"record create", http.MethodPost, "/api/v1/records", false},
		{"login", http.MethodPost, "/api/v1/auth/login", false},
	}

	for _, tt := range tests {
		if got := requiresIdempotency(tt.method, tt.pattern); got != tt.want {
			t.Fatalf("%s: expected %v got %v", tt.name, tt.want, got)
		}
	}
}

func TestNormalizeMultipartIgnoresBoundary(t *testing.T) {
	first := "--AAA\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\nbytes\r\n--AAA--"
	second := "--BBB\r\nContent-Disposition: form-data; name=\"file\"\r\n\r\nbytes\r\n--BBB--"

	a := hashBody(normalizeMultipart("multipart/form-data; boundary=AAA", []byte(first)))
	b := hashBody(normalizeMultipart("multipart/form-data; boundary=BBB", []byte(second)))
	if a != b {
		t.Fatalf("expected boundary-independent hash")
	}

	plain := []byte(`{"rows":[]}`)
	if string(normalizeMultipart("application/json", plain)) != string(plain) {
		t.Fatalf("json bodies must pass through untouched")
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 1<<20, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"upload_date":"2024-06-01","rows":[]}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 1<<20, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"upload_date":"2024-06-01","rows":[]}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected first response 202 got %d", resp.Code)
	}

	replay := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"upload_date":"2024-06-01","rows":[]}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected replay status 202 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 1<<20, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"upload_date":"2024-06-01","rows":[]}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"upload_date":"2024-06-02","rows":[]}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareRejectsDuplicateInFlight(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 1<<20, nil)

	var inner *httptest.ResponseRecorder
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			dup := requestWithPattern(http.MethodDelete, "/api/admin/v1/catalog/days/2024-06-01", "/api/admin/v1/catalog/days/{day}", nil)
			dup.Header.Set("Idempotency-Key", "k1")
			mw(handler).ServeHTTP(inner, dup)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodDelete, "/api/admin/v1/catalog/days/2024-06-01", "/api/admin/v1/catalog/days/{day}", nil)
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected first request 200 got %d", resp.Code)
	}
	if inner == nil || inner.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %+v", inner)
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 1<<20, nil)
	status := http.StatusServiceUnavailable
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	send := func() *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/ingest", "/api/admin/v1/catalog/ingest", strings.NewReader(`{"rows":[]}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released after server error, got %v", store.data)
	}

	status = http.StatusCreated
	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to run, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusCreated || rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay of 201, got %d replayed=%q", rec.Code, rec.Header().Get(replayedHeader))
	}
	if calls != 2 {
		t.Fatalf("handler ran %d times, expected 2", calls)
	}
}

func TestIdempotencyMiddlewareCapsBufferedBody(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, 16, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	})

	req := requestWithPattern(http.MethodPost, "/api/admin/v1/catalog/upload", "/api/admin/v1/catalog/upload", strings.NewReader(strings.Repeat("x", 64)))
	req.Header.Set(idempotencyHeader, "big-1")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "request body too large") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if handlerCalled {
		t.Fatalf("handler should not run for an oversized body")
	}
	if len(store.data) != 0 {
		t.Fatalf("oversized request must not reserve a key")
	}
}
