package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/audit"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	pkgAuth "github.com/angelmondragon/stocktake-backend/pkg/auth"
	"github.com/angelmondragon/stocktake-backend/pkg/auth/session"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/db/models"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	minPasswordLength         = 8
)

// Service defines the behavior needed by the auth controller.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error)
	Logout(ctx context.Context, accessID string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error
}

type service struct {
	users   userRepository
	session sessionManager
	hasher  passwordVerifier
	audit   audit.Sink
	jwtCfg  config.JWTConfig
	now     func() time.Time
}

type userRepository interface {
	FindByName(ctx context.Context, name string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (*session.Rotation, error)
	Revoke(ctx context.Context, accessID string) error
}

type passwordVerifier interface {
	Verify(password, encoded string) (bool, error)
}

// Hashers that also report stale parameters get the stored hash upgraded on
// the next successful login.
type passwordRehasher interface {
	NeedsRehash(encoded string) bool
	Hash(password string) (string, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

type passwordStore interface {
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	Hasher         passwordVerifier
	Audit          audit.Sink
	JWTConfig      config.JWTConfig
	Now            func() time.Time
}

// NewService constructs a login service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user repository is required")
	}
	if params.SessionManager == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session manager is required")
	}
	if params.Hasher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "password verifier is required")
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		users:   params.UserRepo,
		session: params.SessionManager,
		hasher:  params.Hasher,
		audit:   sink,
		jwtCfg:  params.JWTConfig,
		now:     now,
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.authenticate(ctx, req.Name, req.Password)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeUnauthorized) {
			s.audit.Record(ctx, audit.Event{
				Action:       enums.AuditLoginFailed,
				ResourceType: enums.AuditResourceUser,
				Details:      map[string]any{"name": strings.TrimSpace(req.Name)},
				Failed:       true,
			})
		}
		return nil, err
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	user.LastLoginAt = &now

	pair, err := s.issue(ctx, user, session.NewAccessID(), now)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:      user.ID,
		Action:       enums.AuditLoginSucceeded,
		ResourceType: enums.AuditResourceUser,
		ResourceID:   user.ID.String(),
	})

	return &LoginResponse{TokenPair: *pair, User: users.FromModel(user)}, nil
}

// Refresh exchanges a refresh token for a new credential pair. The access
// token may be expired but must carry a valid signature.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, req.AccessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	rotation, err := s.session.Rotate(ctx, claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate refresh token")
	}
	if rotation.UserID != claims.UserID {
		_ = s.session.Revoke(ctx, rotation.AccessID)
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, rotation.UserID)
	if err != nil || !user.IsActive {
		_ = s.session.Revoke(ctx, rotation.AccessID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account is no longer active")
	}

	accessToken, err := s.mint(user, rotation.AccessID, s.now())
	if err != nil {
		return nil, err
	}
	return s.pair(accessToken, rotation.RefreshToken), nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session")
	}
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// ChangePassword replaces the caller's password after checking the current
// one. A wrong current password is a validation failure, not 401, so clients
// do not mistake it for an expired session.
func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	if len(req.NewPassword) < minPasswordLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password is too short").
			WithDetails(map[string]any{"field": "new_password", "min_length": minPasswordLength})
	}
	if req.NewPassword == req.OldPassword {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must differ from the current one").
			WithDetails(map[string]any{"field": "new_password"})
	}
	hasher, ok := s.hasher.(passwordHasher)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeDependency, "password hasher cannot hash")
	}
	store, ok := s.users.(passwordStore)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeDependency, "user repository cannot store passwords")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	valid, err := s.hasher.Verify(req.OldPassword, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		s.audit.Record(ctx, audit.Event{
			ActorID:      user.ID,
			Action:       enums.AuditPasswordChanged,
			ResourceType: enums.AuditResourceUser,
			ResourceID:   user.ID.String(),
			Failed:       true,
		})
		return pkgerrors.New(pkgerrors.CodeValidation, "current password is incorrect").
			WithDetails(map[string]any{"field": "old_password"})
	}

	hash, err := hasher.Hash(req.NewPassword)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}
	if err := store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store password")
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:      user.ID,
		Action:       enums.AuditPasswordChanged,
		ResourceType: enums.AuditResourceUser,
		ResourceID:   user.ID.String(),
	})
	return nil
}

func (s *service) issue(ctx context.Context, user *models.User, accessID string, now time.Time) (*TokenPair, error) {
	accessToken, err := s.mint(user, accessID, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.session.Generate(ctx, accessID, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return s.pair(accessToken, refreshToken), nil
}

func (s *service) pair(access, refresh string) *TokenPair {
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(pkgAuth.TTL(s.jwtCfg).Seconds()),
	}
}

func (s *service) mint(user *models.User, accessID string, now time.Time) (string, error) {
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return token, nil
}

func (s *service) authenticate(ctx context.Context, name, password string) (*models.User, error) {
	input := strings.TrimSpace(name)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByName(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	s.upgradeHash(ctx, user, password)
	return user, nil
}

// upgradeHash is best effort; a failed write leaves the old hash valid.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	rehasher, ok := s.hasher.(passwordRehasher)
	if !ok || !rehasher.NeedsRehash(user.PasswordHash) {
		return
	}
	store, ok := s.users.(passwordStore)
	if !ok {
		return
	}
	hash, err := rehasher.Hash(password)
	if err != nil {
		return
	}
	if err := store.UpdatePasswordHash(ctx, user.ID, hash); err == nil {
		user.PasswordHash = hash
	}
}
