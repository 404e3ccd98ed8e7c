package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stocktake-backend/pkg/enums"
)

// Principal is the caller resolved from a verified access token.
type Principal struct {
	UserID   uuid.UUID
	Name     string
	Role     enums.Role
	AccessID string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reports false on routes outside the Auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.UserID != uuid.Nil {
		return p.UserID.String()
	}
	return ""
}

func UserNameFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Name
}

func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return string(p.Role)
}

func AccessIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.AccessID
}

// WithRole sets only the role, keeping any principal already present.
func WithRole(ctx context.Context, role string) context.Context {
	p, _ := PrincipalFromContext(ctx)
	p.Role = enums.Role(role)
	return WithPrincipal(ctx, p)
}
