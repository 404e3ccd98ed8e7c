package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stocktake-backend/api/responses"
	pkgAuth "github.com/angelmondragon/stocktake-backend/pkg/auth"
	"github.com/angelmondragon/stocktake-backend/pkg/auth/session"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

// Auth admits requests carrying a valid access token whose session is still
// live, and seeds the context with the caller's Principal.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithActor(ctx, principal.UserID.String(), principal.Name, string(principal.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker) (Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return Principal{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if !claims.Role.IsValid() {
		return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role")
	}

	// A logged-out or rotated session invalidates its access token early.
	if verifier != nil {
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return Principal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}

	return Principal{
		UserID:   claims.UserID,
		Name:     claims.Name,
		Role:     claims.Role,
		AccessID: claims.ID,
	}, nil
}

// BearerToken returns the credential of a "Bearer" Authorization header, or
// "" for any other scheme.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
