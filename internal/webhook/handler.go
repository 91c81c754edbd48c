package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const (
	maxBodyBytes = 1 << 20
	dateLayout   = "2006-01-02"
)

// webhook 响应头，调用方是 TradingView 一类的外部系统
var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
}

// AlertCreator 告警写入
type AlertCreator interface {
	Create(ctx context.Context, alert *models.TradingAlert) (*models.TradingAlert, error)
}

// Handler webhook 入口
type Handler struct {
	store AlertCreator
	loc   *time.Location
	now   func() time.Time
}

// NewHandler loc 为交易日所在时区
func NewHandler(store AlertCreator, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store: store,
		loc:   loc,
		now:   time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	defer func() {
		monitor.ObserveWebhookDuration(time.Since(start).Seconds())
	}()
	defer goplus.RecoverWith(func(any) {
		monitor.IncWebhook("failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("Internal server error"))
	})

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("Method not allowed"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		monitor.IncWebhook("rejected")
		logger.Warn().Err(err).Msg("read webhook body failed")
		writeJSON(w, http.StatusBadRequest, errorBody(ErrInvalidPayload.Error()))
		return
	}

	alert, err := Validate(body)
	if err != nil {
		monitor.IncWebhook("rejected")
		logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("webhook rejected")
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	now := h.now()
	alert.Timestamp = now.UTC()
	alert.Date = now.In(h.loc).Format(dateLayout)

	row, err := h.store.Create(r.Context(), alert)
	if err != nil {
		monitor.IncWebhook("failed")
		logger.Error().Err(err).
			Str("title", alert.Title).
			Str("symbol", alert.StockSymbol).
			Msg("save alert failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("Failed to save alert"))
		return
	}

	monitor.IncWebhook("accepted")
	logger.Info().
		Str("id", row.ID).
		Str("symbol", row.StockSymbol).
		Str("type", row.Type).
		Str("interval", row.Interval).
		Bool("test_mode", row.TestMode).
		Msg("alert saved")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"alert":   row,
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logger.Debug().Err(err).Msg("write webhook response failed")
	}
}
