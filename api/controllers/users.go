package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/stocktake-backend/api/responses"
	"github.com/angelmondragon/stocktake-backend/api/validators"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

type createUserRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=64"`
	Workshop string `json:"workshop" validate:"max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=worker admin"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,notblank,max=64"`
	Workshop *string `json:"workshop" validate:"omitempty,max=128"`
	Role     *string `json:"role" validate:"omitempty,oneof=worker admin"`
	IsActive *bool   `json:"is_active"`
}

func UserList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var role *enums.Role
		if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
			parsed, err := enums.ParseRole(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
				return
			}
			role = &parsed
		}

		list, err := svc.List(r.Context(), role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// UserCreate provisions an account. Only administrators reach this handler.
func UserCreate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createUserRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role := enums.RoleWorker
		if body.Role != "" {
			role = enums.Role(body.Role)
		}
		created, err := svc.Create(r.Context(), actor.UserID, users.CreateInput{
			Name:     validators.SanitizeString(body.Name, 64),
			Workshop: validators.SanitizeString(body.Workshop, 128),
			Role:     role,
			Password: body.Password,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func UserGet(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		user, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// UserUpdate changes profile fields, role or the active flag of an account.
func UserUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateUserRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := users.UpdateInput{IsActive: body.IsActive}
		if body.Name != nil {
			name := validators.SanitizeString(*body.Name, 64)
			input.Name = &name
		}
		if body.Workshop != nil {
			workshop := validators.SanitizeString(*body.Workshop, 128)
			input.Workshop = &workshop
		}
		if body.Role != nil {
			role := enums.Role(*body.Role)
			input.Role = &role
		}

		updated, err := svc.Update(r.Context(), actor.UserID, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// UserDelete removes an account along with its count records.
func UserDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor.UserID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}
