package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stocktake-backend/api/responses"
	"github.com/angelmondragon/stocktake-backend/api/validators"
	"github.com/angelmondragon/stocktake-backend/internal/catalog"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	pkgerrors "github.com/angelmondragon/stocktake-backend/pkg/errors"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/pagination"
	"github.com/angelmondragon/stocktake-backend/pkg/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ingestRequest struct {
	UploadDate string              `json:"upload_date"`
	Rows       []map[string]string `json:"rows"`
}

// CatalogIngest replaces a day's catalog from pre-parsed JSON rows.
func CatalogIngest(svc catalog.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ingestRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		day, err := validators.ParseDayValue(body.UploadDate, "upload_date", cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Ingest(r.Context(), catalog.IngestInput{
			Rows:       body.Rows,
			UploadedBy: actor.UserID,
			TargetDay:  day,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CatalogUpload replaces a day's catalog from an uploaded .xlsx workbook.
func CatalogUpload(svc catalog.Service, cal *calendar.Calendar, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "file too large").
					WithDetails(map[string]any{"max_bytes": maxBytes}))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeMissingField, err, "file is required").
				WithDetails(map[string]any{"field": "file"}))
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "only .xlsx files are accepted").
				WithDetails(map[string]any{"field": "file"}))
			return
		}

		day, err := validators.ParseDayValue(r.FormValue("upload_date"), "upload_date", cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sheetRows, err := spreadsheet.ReadRows(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable spreadsheet"))
			return
		}
		rows := make([]map[string]string, len(sheetRows))
		for i, row := range sheetRows {
			rows[i] = row
		}

		result, err := svc.Ingest(r.Context(), catalog.IngestInput{
			Rows:       rows,
			UploadedBy: actor.UserID,
			TargetDay:  day,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CatalogTemplate serves an empty workbook with the expected header row.
func CatalogTemplate(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := spreadsheet.Write("catalog", catalog.TemplateHeaders, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build template"))
			return
		}
		responses.WriteFile(w, xlsxContentType, "catalog-template.xlsx", content)
	}
}

func CatalogPurge(svc catalog.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		day, err := validators.ParseDayValue(chi.URLParam(r, "day"), "day", cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if day == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeMissingField, "day is required"))
			return
		}

		result, err := svc.Purge(r.Context(), *day, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CatalogItems(svc catalog.Service, cal *calendar.Calendar, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, err := validators.ParseQueryDay(r, "day", cal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		q := r.URL.Query()
		result, err := svc.ListItems(r.Context(), catalog.ListParams{
			Day:       day,
			Workshop:  validators.SanitizeString(q.Get("workshop"), 128),
			OwnerName: validators.SanitizeString(q.Get("owner_name"), 128),
			Limit:     limit,
			Cursor:    q.Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
