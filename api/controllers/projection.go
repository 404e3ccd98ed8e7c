package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/stocktake-backend/api/responses"
	"github.com/angelmondragon/stocktake-backend/api/validators"
	"github.com/angelmondragon/stocktake-backend/internal/projection"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
)

// Me returns the authenticated user's profile.
func Me(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.Get(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// Worklist returns today's items owned by the caller with their records.
func Worklist(svc projection.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.Worklist(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// StatusGrid joins items with records across a day range.
func StatusGrid(svc projection.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, end, err := parseDayRange(r, cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requested, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		grid, err := svc.StatusGrid(r.Context(), start, end, scopeUser(actor, requested))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, grid)
	}
}

func Summary(svc projection.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseDayRange(r, cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Summary(r.Context(), start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func parseDayRange(r *http.Request, cal *calendar.Calendar) (*time.Time, *time.Time, error) {
	start, err := validators.ParseQueryDay(r, "start", cal)
	if err != nil {
		return nil, nil, err
	}
	end, err := validators.ParseQueryDay(r, "end", cal)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// Progress reports per-user record counts for administrators.
func Progress(svc projection.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, end, err := parseDayRange(r, cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Progress(r.Context(), start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
