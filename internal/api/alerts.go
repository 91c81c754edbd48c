package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/utrading/utrading-alert-hub/internal/cache"
	"github.com/utrading/utrading-alert-hub/internal/dao"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const dateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=new active ignored"`
}

type alertHandler struct {
	store AlertStore
	days  *cache.DayCache
	loc   *time.Location
	now   func() time.Time
}

// list GET /api/alerts?date=YYYY-MM-DD，缺省为交易时区的今天
func (h *alertHandler) list(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.now().In(h.loc).Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid date"))
		return
	}

	alerts, err := h.days.Get(r.Context(), date)
	if err != nil {
		logger.Error().Err(err).Str("date", date).Msg("list alerts failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to fetch alerts"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   date,
		"alerts": alerts,
	})
}

// updateStatus PATCH /api/alerts/{id}/status
func (h *alertHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid JSON payload"))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid status"))
		return
	}

	status := models.AlertStatus(req.Status)
	row, err := h.store.UpdateStatus(r.Context(), id, status)
	if errors.Is(err, dao.ErrAlertNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("Alert not found"))
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("id", id).Str("status", req.Status).Msg("update alert status failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to update alert status"))
		return
	}

	monitor.IncStatusUpdates(req.Status)
	logger.Info().Str("id", id).Str("status", req.Status).Msg("alert status updated")
	writeJSON(w, http.StatusOK, map[string]any{"alert": row})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("write response failed")
	}
}
