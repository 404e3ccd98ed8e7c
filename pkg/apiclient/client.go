// Package apiclient is the Go client for the stocktake HTTP API. Every call
// goes through a Gate so concurrent requests share one credential refresh.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stocktake-backend/internal/auth"
	"github.com/angelmondragon/stocktake-backend/internal/catalog"
	"github.com/angelmondragon/stocktake-backend/internal/projection"
	"github.com/angelmondragon/stocktake-backend/internal/records"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/types"
)

const (
	idempotencyHeader = "Idempotency-Key"
	getRetries        = 2
)

// Client calls the stocktake API.
type Client struct {
	http *resty.Client
	gate *Gate
}

// New builds a client for the configured server.
func New(cfg config.ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(getRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryIdempotentReads).
		SetHeader("Accept", "application/json")

	c := &Client{http: httpClient}
	c.gate = NewGate(c.refresh)
	return c
}

// Gate exposes the credential gate, mainly to hook OnUnauthenticated.
func (c *Client) Gate() *Gate {
	return c.gate
}

// retryIdempotentReads retries GETs on transport errors and 5xx responses.
// Writes are never retried here.
func retryIdempotentReads(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

func call[T any](ctx context.Context, c *Client, build func(req *resty.Request) (*resty.Response, error)) (T, error) {
	var out T
	err := c.gate.Do(ctx, func(ctx context.Context, token string) (bool, error) {
		var result types.Envelope[T]
		req := c.http.R().SetContext(ctx).SetResult(&result)
		if token != "" {
			req.SetAuthToken(token)
		}
		resp, err := build(req)
		if err != nil {
			return false, fmt.Errorf("request failed: %w", err)
		}
		if resp.IsError() {
			return resp.StatusCode() == http.StatusUnauthorized, decodeError(resp)
		}
		out = result.Data
		return false, nil
	})
	return out, err
}

// Login authenticates and stores the issued credential pair.
func (c *Client) Login(ctx context.Context, name, password string) (*auth.LoginResponse, error) {
	var result types.Envelope[auth.LoginResponse]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(auth.LoginRequest{Name: name, Password: password}).
		SetResult(&result).
		Post("/api/v1/auth/login")
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if resp.IsError() {
		return nil, decodeError(resp)
	}
	c.gate.SetTokens(Tokens{Access: result.Data.AccessToken, Refresh: result.Data.RefreshToken})
	return &result.Data, nil
}

func (c *Client) refresh(ctx context.Context, current Tokens) (Tokens, error) {
	var result types.Envelope[auth.TokenPair]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(auth.RefreshRequest{AccessToken: current.Access, RefreshToken: current.Refresh}).
		SetResult(&result).
		Post("/api/v1/auth/refresh")
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh request failed: %w", err)
	}
	if resp.IsError() {
		return Tokens{}, decodeError(resp)
	}
	return Tokens{Access: result.Data.AccessToken, Refresh: result.Data.RefreshToken}, nil
}

// Logout revokes the server session and forgets local credentials.
func (c *Client) Logout(ctx context.Context) error {
	_, err := call[map[string]any](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Post("/api/v1/auth/logout")
	})
	c.gate.Clear()
	return err
}

func (c *Client) Me(ctx context.Context) (*users.UserDTO, error) {
	return call[*users.UserDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Get("/api/v1/me")
	})
}

func (c *Client) Worklist(ctx context.Context) (*projection.Worklist, error) {
	return call[*projection.Worklist](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Get("/api/v1/worklist")
	})
}

// StatusGridQuery selects the grid's day range and optional user.
type StatusGridQuery struct {
	Start  *time.Time
	End    *time.Time
	UserID *uuid.UUID
}

func (c *Client) StatusGrid(ctx context.Context, q StatusGridQuery) (*projection.StatusGrid, error) {
	params := rangeParams(q.Start, q.End)
	if q.UserID != nil {
		params.Set("user_id", q.UserID.String())
	}
	return call[*projection.StatusGrid](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParamsFromValues(params).Get("/api/v1/status-grid")
	})
}

type recordBody struct {
	CatalogItemID  *uuid.UUID      `json:"catalog_item_id,omitempty"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
}

func (c *Client) CreateRecord(ctx context.Context, itemID uuid.UUID, qty decimal.Decimal) (*records.RecordDTO, error) {
	return call[*records.RecordDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(recordBody{CatalogItemID: &itemID, ActualQuantity: qty}).Post("/api/v1/records")
	})
}

func (c *Client) UpdateRecord(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (*records.RecordDTO, error) {
	return call[*records.RecordDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(recordBody{ActualQuantity: qty}).Put("/api/v1/records/" + id.String())
	})
}

func (c *Client) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	_, err := call[map[string]any](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete("/api/v1/records/" + id.String())
	})
	return err
}

func (c *Client) GetRecord(ctx context.Context, id uuid.UUID) (*records.RecordDTO, error) {
	return call[*records.RecordDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Get("/api/v1/records/" + id.String())
	})
}

func (c *Client) SubmitRecord(ctx context.Context, id uuid.UUID) (*records.RecordDTO, error) {
	return call[*records.RecordDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Post("/api/v1/records/" + id.String() + "/submit")
	})
}

func (c *Client) SubmitBatch(ctx context.Context, ids []uuid.UUID) (*records.BatchResult, error) {
	return call[*records.BatchResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(map[string]any{"record_ids": ids}).Post("/api/v1/records/batch/submit")
	})
}

// RecordQuery filters ListRecords.
type RecordQuery struct {
	UserID *uuid.UUID
	Status *enums.RecordStatus
	Start  *time.Time
	End    *time.Time
	Limit  int
	Cursor string
}

func (c *Client) ListRecords(ctx context.Context, q RecordQuery) (*records.ListResult, error) {
	params := rangeParams(q.Start, q.End)
	if q.UserID != nil {
		params.Set("user_id", q.UserID.String())
	}
	if q.Status != nil {
		params.Set("status", q.Status.String())
	}
	pageParams(params, q.Limit, q.Cursor)
	return call[*records.ListResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParamsFromValues(params).Get("/api/v1/records")
	})
}

// IngestRows publishes a catalog day from already-parsed rows. An empty
// idempotency key lets the client generate one.
func (c *Client) IngestRows(ctx context.Context, rows []map[string]string, day *time.Time, idempotencyKey string) (*catalog.IngestResult, error) {
	body := map[string]any{"rows": rows}
	if day != nil {
		body["upload_date"] = calendar.FormatDay(*day)
	}
	key := keyOrNew(idempotencyKey)
	return call[*catalog.IngestResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetHeader(idempotencyHeader, key).SetBody(body).Post("/api/admin/v1/catalog/ingest")
	})
}

// UploadSpreadsheet publishes a catalog day from an .xlsx file.
func (c *Client) UploadSpreadsheet(ctx context.Context, filename string, content []byte, day *time.Time, idempotencyKey string) (*catalog.IngestResult, error) {
	key := keyOrNew(idempotencyKey)
	return call[*catalog.IngestResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		req.SetHeader(idempotencyHeader, key).
			SetFileReader("file", filename, bytes.NewReader(content))
		if day != nil {
			req.SetFormData(map[string]string{"upload_date": calendar.FormatDay(*day)})
		}
		return req.Post("/api/admin/v1/catalog/upload")
	})
}

// DownloadTemplate fetches the blank catalog spreadsheet.
func (c *Client) DownloadTemplate(ctx context.Context) ([]byte, error) {
	var body []byte
	err := c.gate.Do(ctx, func(ctx context.Context, token string) (bool, error) {
		req := c.http.R().SetContext(ctx)
		if token != "" {
			req.SetAuthToken(token)
		}
		resp, err := req.Get("/api/admin/v1/catalog/template")
		if err != nil {
			return false, fmt.Errorf("request failed: %w", err)
		}
		if resp.IsError() {
			return resp.StatusCode() == http.StatusUnauthorized, decodeError(resp)
		}
		body = resp.Body()
		return false, nil
	})
	return body, err
}

func (c *Client) PurgeDay(ctx context.Context, day time.Time) (*catalog.PurgeResult, error) {
	return call[*catalog.PurgeResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete("/api/admin/v1/catalog/days/" + calendar.FormatDay(day))
	})
}

// CatalogQuery filters ListCatalogItems.
type CatalogQuery struct {
	Day       *time.Time
	Workshop  string
	OwnerName string
	Limit     int
	Cursor    string
}

func (c *Client) ListCatalogItems(ctx context.Context, q CatalogQuery) (*catalog.ListResult, error) {
	params := url.Values{}
	if q.Day != nil {
		params.Set("day", calendar.FormatDay(*q.Day))
	}
	if q.Workshop != "" {
		params.Set("workshop", q.Workshop)
	}
	if q.OwnerName != "" {
		params.Set("owner_name", q.OwnerName)
	}
	pageParams(params, q.Limit, q.Cursor)
	return call[*catalog.ListResult](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParamsFromValues(params).Get("/api/admin/v1/catalog/items")
	})
}

func (c *Client) Summary(ctx context.Context, start, end *time.Time) (*projection.Summary, error) {
	params := rangeParams(start, end)
	return call[*projection.Summary](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParamsFromValues(params).Get("/api/admin/v1/summary")
	})
}

func (c *Client) ListUsers(ctx context.Context) ([]users.UserDTO, error) {
	return call[[]users.UserDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Get("/api/admin/v1/users")
	})
}

// NewUser is the payload for CreateUser.
type NewUser struct {
	Name     string     `json:"name"`
	Workshop string     `json:"workshop,omitempty"`
	Role     enums.Role `json:"role,omitempty"`
	Password string     `json:"password"`
}

func (c *Client) CreateUser(ctx context.Context, u NewUser) (*users.UserDTO, error) {
	return call[*users.UserDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(u).Post("/api/admin/v1/users")
	})
}

func (c *Client) GetUser(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	return call[*users.UserDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Get("/api/admin/v1/users/" + id.String())
	})
}

// UserChanges is the payload for UpdateUser. Nil fields are left unchanged.
type UserChanges struct {
	Name     *string     `json:"name,omitempty"`
	Workshop *string     `json:"workshop,omitempty"`
	Role     *enums.Role `json:"role,omitempty"`
	IsActive *bool       `json:"is_active,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, id uuid.UUID, changes UserChanges) (*users.UserDTO, error) {
	return call[*users.UserDTO](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(changes).Patch("/api/admin/v1/users/" + id.String())
	})
}

// DeleteUser removes the account and every count record it owns.
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := call[map[string]any](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete("/api/admin/v1/users/" + id.String())
	})
	return err
}

// ChangePassword replaces the signed-in user's password. A wrong current
// password comes back as a VALIDATION error and leaves the session intact.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := auth.ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}
	_, err := call[map[string]any](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).Post("/api/v1/auth/change-password")
	})
	return err
}

func (c *Client) Progress(ctx context.Context, start, end *time.Time) (*projection.Progress, error) {
	params := rangeParams(start, end)
	return call[*projection.Progress](ctx, c, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParamsFromValues(params).Get("/api/admin/v1/progress")
	})
}

func rangeParams(start, end *time.Time) url.Values {
	params := url.Values{}
	if start != nil {
		params.Set("start", calendar.FormatDay(*start))
	}
	if end != nil {
		params.Set("end", calendar.FormatDay(*end))
	}
	return params
}

func pageParams(params url.Values, limit int, cursor string) {
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
}

func keyOrNew(key string) string {
	if key != "" {
		return key
	}
	return uuid.NewString()
}
