package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "cashplan_http_requests_total{code=\"418\",method=\"GET\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "cashplan_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "cashplan_http_requests_in_flight 0") {
		t.Fatalf("expected in-flight gauge to return to zero, got: %s", metricsBody)
	}
}

func TestEngineMetricsRecordsStagesAndRuns(t *testing.T) {
	metrics := NewMetrics()
	engine := NewEngineMetrics(metrics.Registerer())

	timer := engine.Stage(StageAllocate)
	timer.Done()
	engine.RunCompleted("success", 12, 2)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	if !strings.Contains(body, "cashplan_stage_duration_seconds_bucket{stage=\"allocate\"") {
		t.Fatalf("expected stage histogram, got: %s", body)
	}
	if !strings.Contains(body, "cashplan_plan_runs_total{status=\"success\"} 1") {
		t.Fatalf("expected run counter, got: %s", body)
	}
	if !strings.Contains(body, "cashplan_plan_deficit_dates 2") {
		t.Fatalf("expected deficit gauge, got: %s", body)
	}
}
