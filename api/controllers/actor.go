package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stocktake-backend/api/middleware"
	"github.com/angelmondragon/stocktake-backend/internal/records"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
)

func actorFromRequest(r *http.Request) (records.Actor, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.UserID == uuid.Nil {
		return records.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return records.Actor{UserID: p.UserID, IsAdmin: p.Role.IsAdmin()}, nil
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param).WithDetails(map[string]any{"field": param})
	}
	return id, nil
}

// scopeUser narrows a user filter to the caller unless the caller is an admin.
func scopeUser(actor records.Actor, requested *uuid.UUID) *uuid.UUID {
	if actor.IsAdmin {
		return requested
	}
	self := actor.UserID
	return &self
}
