package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type recordingJobs struct {
	planReasons []string
	refreshes   int
	err         error
}

func (j *recordingJobs) PlanGenerate(_ context.Context, reason string) error {
	j.planReasons = append(j.planReasons, reason)
	return j.err
}

func (j *recordingJobs) ForecastRefresh(context.Context) error {
	j.refreshes++
	return j.err
}

func newHandlerRouter(svc *Service, jobs Jobs) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, jobs)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestHandlerRegisterQueuesRegeneration(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	jobs := &recordingJobs{}
	router := newHandlerRouter(svc, jobs)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"horizon_days": 91, "balances": {"2024-03-10": 100}}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", body))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, []string{"forecast_registered"}, jobs.planReasons)
}

func TestHandlerRegisterSucceedsWhenQueueIsDown(t *testing.T) {
	svc, repo := newTestService(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	jobs := &recordingJobs{err: errors.New("redis gone")}
	router := newHandlerRouter(svc, jobs)

	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"horizon_days": 91, "balances": {"2024-03-10": 100}}`)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", body))
	require.Equal(t, http.StatusCreated, rr.Code, "the run must be stored even when the hook fails")
	require.Len(t, repo.runs, 1)
}

func TestHandlerRefreshQueuesProviderPull(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	jobs := &recordingJobs{}
	router := newHandlerRouter(svc, jobs)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, jobs.refreshes)
}

func TestHandlerRefreshWithoutQueue(t *testing.T) {
	svc, _ := newTestService(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	router := newHandlerRouter(svc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
