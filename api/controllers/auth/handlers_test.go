package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stocktake-backend/api/middleware"
	"github.com/angelmondragon/stocktake-backend/internal/auth"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

type stubAuth struct {
	loginErr  error
	lastLogin auth.LoginRequest
	loggedOut string
	changedBy uuid.UUID
	changeErr error
}

func (s *stubAuth) Login(_ context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	s.lastLogin = req
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &auth.LoginResponse{TokenPair: auth.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60}}, nil
}

func (s *stubAuth) Refresh(_ context.Context, req auth.RefreshRequest) (*auth.TokenPair, error) {
	return &auth.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuth) Logout(_ context.Context, accessID string) error {
	s.loggedOut = accessID
	return nil
}

func (s *stubAuth) ChangePassword(_ context.Context, userID uuid.UUID, req auth.ChangePasswordRequest) error {
	if s.changeErr != nil {
		return s.changeErr
	}
	s.changedBy = userID
	return nil
}

func TestAuthLoginReturnsTokensWithoutCaching(t *testing.T) {
	svc := &stubAuth{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"name":"li","password":"pw"}`))

	AuthLogin(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, "li", svc.lastLogin.Name)

	var env struct {
		Data auth.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "a", env.Data.AccessToken)
	require.EqualValues(t, 60, env.Data.ExpiresIn)
}

func TestAuthLoginMapsServiceErrors(t *testing.T) {
	svc := &stubAuth{loginErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"name":"li","password":"bad"}`))

	AuthLogin(svc, nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlersWithoutService(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthRefresh(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthLogoutRequiresBearer(t *testing.T) {
	svc := &stubAuth{}
	rec := httptest.NewRecorder()
	AuthLogout(svc, config.JWTConfig{Secret: "s", Issuer: "i", ExpirationMinutes: 1}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, svc.loggedOut)
}

func TestAuthChangePassword(t *testing.T) {
	userID := uuid.New()
	body := `{"old_password":"old-secret","new_password":"new-secret"}`
	withPrincipal := func(req *http.Request) *http.Request {
		return req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{UserID: userID}))
	}

	t.Run("requires principal", func(t *testing.T) {
		svc := &stubAuth{}
		rec := httptest.NewRecorder()
		AuthChangePassword(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(body)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, uuid.Nil, svc.changedBy)
	})

	t.Run("rejects short password", func(t *testing.T) {
		svc := &stubAuth{}
		rec := httptest.NewRecorder()
		req := withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(`{"old_password":"x","new_password":"short"}`)))
		AuthChangePassword(svc, nil).ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong current password is not unauthorized", func(t *testing.T) {
		svc := &stubAuth{changeErr: pkgerrors.New(pkgerrors.CodeValidation, "current password is incorrect")}
		rec := httptest.NewRecorder()
		AuthChangePassword(svc, nil).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(body))))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("changes for caller", func(t *testing.T) {
		svc := &stubAuth{}
		rec := httptest.NewRecorder()
		AuthChangePassword(svc, nil).ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password", strings.NewReader(body))))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, userID, svc.changedBy)
	})
}
