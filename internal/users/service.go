package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stocktake-backend/internal/audit"
	"github.com/angelmondragon/stocktake-backend/pkg/db"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

// Service manages the people who count and administer stock.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*UserDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	List(ctx context.Context, role *enums.Role) ([]UserDTO, error)
	Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*UserDTO, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	EnsureAdmin(ctx context.Context, name, password string) (*UserDTO, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
}

// CreateInput is the validated request for a new account.
type CreateInput struct {
	Name     string
	Workshop string
	Role     enums.Role
	Password string
}

// UpdateInput carries the profile fields to change. Nil fields are left as they are.
type UpdateInput struct {
	Name     *string
	Workshop *string
	Role     *enums.Role
	IsActive *bool
}

type service struct {
	repo   *Repository
	hasher passwordHasher
	audit  audit.Sink
	logg   *logger.Logger
}

// ServiceParams groups user service dependencies.
type ServiceParams struct {
	Repo   *Repository
	Hasher passwordHasher
	Audit  audit.Sink
	Logger *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	if params.Hasher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "password hasher required")
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.Nop{}
	}
	return &service{repo: params.Repo, hasher: params.Hasher, audit: sink, logg: params.Logger}, nil
}

func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*UserDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	role := input.Role
	if role == "" {
		role = enums.RoleWorker
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}

	user, err := s.repo.Create(ctx, CreateUserDTO{
		Name:         name,
		Workshop:     strings.TrimSpace(input.Workshop),
		Role:         role,
		PasswordHash: hash,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a user with this name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:      actorID,
		Action:       enums.AuditUserCreated,
		ResourceType: enums.AuditResourceUser,
		ResourceID:   user.ID.String(),
		Details:      map[string]any{"name": user.Name, "role": string(user.Role)},
	})
	return FromModel(user), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context, role *enums.Role) ([]UserDTO, error) {
	if role != nil && !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	rows, err := s.repo.List(ctx, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// EnsureAdmin creates the bootstrap administrator if no user holds that name.
// An existing account is returned untouched.
func (s *service) EnsureAdmin(ctx context.Context, name, password string) (*UserDTO, error) {
	existing, err := s.repo.FindByName(ctx, strings.TrimSpace(name))
	if err == nil {
		if existing.Role != enums.RoleAdmin && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "user_name", existing.Name), "bootstrap admin name belongs to a non-admin user")
		}
		return FromModel(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup bootstrap admin")
	}
	created, err := s.Create(ctx, uuid.Nil, CreateInput{Name: name, Role: enums.RoleAdmin, Password: password})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "user_name", created.Name), "bootstrap admin created")
	}
	return created, nil
}

// Update changes a user's profile. An administrator cannot demote or
// deactivate their own account. Renaming does not touch catalog items whose
// owner_name still carries the old name; the audit entry keeps it.
func (s *service) Update(ctx context.Context, actorID, id uuid.UUID, input UpdateInput) (*UserDTO, error) {
	changes := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
		}
		changes["name"] = name
	}
	if input.Workshop != nil {
		changes["workshop"] = strings.TrimSpace(*input.Workshop)
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		changes["role"] = *input.Role
	}
	if input.IsActive != nil {
		changes["is_active"] = *input.IsActive
	}
	if len(changes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if actorID == id {
		demoted := input.Role != nil && *input.Role != enums.RoleAdmin
		deactivated := input.IsActive != nil && !*input.IsActive
		if demoted || deactivated {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "administrators cannot demote or deactivate themselves")
		}
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	affected, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a user with this name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	after, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	details := map[string]any{"changed": changedFields(changes)}
	if after.Name != before.Name {
		details["previous_name"] = before.Name
	}
	s.audit.Record(ctx, audit.Event{
		ActorID:      actorID,
		Action:       enums.AuditUserUpdated,
		ResourceType: enums.AuditResourceUser,
		ResourceID:   id.String(),
		Details:      details,
	})
	return after, nil
}

// Delete removes a user and every count record they own. Administrators
// cannot delete their own account.
func (s *service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
	}

	s.audit.Record(ctx, audit.Event{
		ActorID:      actorID,
		Action:       enums.AuditUserDeleted,
		ResourceType: enums.AuditResourceUser,
		ResourceID:   id.String(),
		Details:      map[string]any{"name": user.Name, "deleted_records": removed},
	})
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"user_name": user.Name, "deleted_records": removed}), "user deleted")
	}
	return nil
}

func changedFields(changes map[string]any) []string {
	out := make([]string, 0, len(changes))
	for _, f := range []string{"name", "workshop", "role", "is_active"} {
		if _, ok := changes[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
