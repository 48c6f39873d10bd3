package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/observability"
	"github.com/cashplan-fin/cashplan-fin/internal/planner"
	"github.com/cashplan-fin/cashplan-fin/internal/policy"
	"github.com/cashplan-fin/cashplan-fin/internal/rules"
	"github.com/cashplan-fin/cashplan-fin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SuppliersHandler *suppliers.Handler
	CreditorsHandler *creditors.Handler
	RulesHandler     *rules.Handler
	PolicyHandler    *policy.Handler
	PlannerHandler   *planner.Handler
	ForecastHandler  *forecast.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with cashplan defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.SuppliersHandler != nil {
			r.Route("/suppliers", params.SuppliersHandler.MountRoutes)
		}
		if params.CreditorsHandler != nil {
			r.Route("/creditors", params.CreditorsHandler.MountRoutes)
		}
		if params.RulesHandler != nil {
			r.Route("/rules", params.RulesHandler.MountRoutes)
		}
		if params.PolicyHandler != nil {
			r.Route("/policies", params.PolicyHandler.MountRoutes)
		}
		if params.PlannerHandler != nil {
			r.Route("/plans", params.PlannerHandler.MountRoutes)
		}
		if params.ForecastHandler != nil {
			r.Route("/forecasts", params.ForecastHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/internal/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
