package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/models"
)

type memStore struct {
	mu    sync.Mutex
	rows  []*models.TradingAlert
	err   error
	panic bool
}

func (s *memStore) Create(_ context.Context, a *models.TradingAlert) (*models.TradingAlert, error) {
	if s.panic {
		panic("driver exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = "generated-id"
	a.CreatedAt = a.Timestamp
	a.UpdatedAt = a.Timestamp
	s.rows = append(s.rows, a)
	return a, nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func newTestHandler(store AlertCreator) *Handler {
	loc, _ := time.LoadLocation("America/New_York")
	h := NewHandler(store, loc)
	// 2024-01-16 02:30 UTC 仍是纽约时间 1 月 15 日
	h.now = func() time.Time { return time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC) }
	return h
}

func do(h http.Handler, method, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/functions/v1/trading-webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Accepts(t *testing.T) {
	store := &memStore{}
	rec := do(newTestHandler(store), http.MethodPost, validPayload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	body := gjson.Parse(rec.Body.String())
	assert.True(t, body.Get("success").Bool())
	assert.Equal(t, "generated-id", body.Get("alert.id").String())
	assert.Equal(t, "new", body.Get("alert.status").String())
	assert.Equal(t, "medium", body.Get("alert.priority").String())
	assert.False(t, body.Get("alert.test_mode").Bool())
	assert.Equal(t, "2024-01-15", body.Get("alert.date").String())
	assert.Equal(t, 1, store.Len())
}

func TestHandler_MissingFieldIs400AndNotPersisted(t *testing.T) {
	store := &memStore{}
	rec := do(newTestHandler(store), http.MethodPost, `{"title":"RSI Oversold","stock_symbol":"AAPL","type":"long","entry_price":150.2,"stoploss_price":148.0}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "interval")
	assert.Equal(t, 0, store.Len())
}

func TestHandler_InvalidJSON(t *testing.T) {
	rec := do(newTestHandler(&memStore{}), http.MethodPost, `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON payload"}`, rec.Body.String())
}

func TestHandler_Preflight(t *testing.T) {
	rec := do(newTestHandler(&memStore{}), http.MethodOptions, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := do(newTestHandler(&memStore{}), m, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String(), m)
	}
}

func TestHandler_PersistenceFailure(t *testing.T) {
	rec := do(newTestHandler(&memStore{err: errors.New("duplicate key: secret detail")}), http.MethodPost, validPayload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to save alert"}`, rec.Body.String())
}

func TestHandler_PanicIsInternalError(t *testing.T) {
	rec := do(newTestHandler(&memStore{panic: true}), http.MethodPost, validPayload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
