package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/kdimtricp/objdetect/internal/encoding"
	"github.com/kdimtricp/objdetect/internal/service"
)

func (app *App) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := app.Service.Stats(r.Context())
	if err != nil {
		app.writeStoreError(w, r, err)
		return
	}
	encoding.WriteJSON(w, http.StatusOK, encoding.Stats(*stats))
}

func (app *App) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxHistoryLimit {
			encoding.WriteError(w, http.StatusUnprocessableEntity, "invalid_limit", "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	summaries, err := app.Service.History(r.Context(), limit)
	if err != nil {
		app.writeStoreError(w, r, err)
		return
	}
	encoding.WriteJSON(w, http.StatusOK, encoding.History(summaries))
}

func (app *App) DetectionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "detection_id")

	rec, err := app.Service.Lookup(r.Context(), id)
	if err != nil {
		app.writeStoreError(w, r, err)
		return
	}
	encoding.WriteJSON(w, http.StatusOK, encoding.Record(rec))
}

func (app *App) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		encoding.WriteError(w, http.StatusNotFound, "not_found", "Detection not found")
	case errors.Is(err, service.ErrInvalidLimit):
		encoding.WriteError(w, http.StatusUnprocessableEntity, "invalid_limit", err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		encoding.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "Detection history is unavailable")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("store query failed")
		encoding.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to read detection history")
	}
}
