package planner

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

func newTestHandler(f *engineFixture) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.engine, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHandlerGenerateReturnsPlan(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var res RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Entries, 2)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", res.RunID.String())
	require.NotNil(t, res.Deficits, "deficits must encode as an array even when empty")
}

func TestHandlerGenerateRejectsAbsurdHorizon(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"horizon_days": 4000}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", body))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlerGenerateConflictWhileRunning(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	f.lock.fail = shared.ErrLockHeld
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerGenerateUnavailableWithoutForecast(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	f.forecasts.err = forecast.ErrUnavailable
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerOverrideValidatesPayload(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"creditor_id": 1, "date": "03/05/2024", "amount": "100"}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/override", body))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	body = strings.NewReader(`{"creditor_id": 99, "date": "2024-03-05", "amount": "100"}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/override", body))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerOverrideCreatesEntry(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"creditor_id": 1, "date": "2024-03-05", "amount": "250", "note": "split with supplier"}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/override", body))
	require.Equal(t, http.StatusCreated, rr.Code)

	var entry PlanEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, SourceManual, entry.Source)
	require.True(t, entry.Amount.Equal(dec("250")))
}

func TestHandlerListAndDeficits(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newTestEngine(now)
	f.seedBasic(now)
	router := newTestHandler(f)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Entries []PlanEntry `json:"entries"`
		Total   int         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Equal(t, 2, listed.Total)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deficits", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Deficits []Deficit `json:"deficits"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Empty(t, body.Deficits)
}
