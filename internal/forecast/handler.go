package forecast

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/platform/httpx"
)

// Jobs enqueues the background work that follows forecast changes.
type Jobs interface {
	PlanGenerate(ctx context.Context, reason string) error
	ForecastRefresh(ctx context.Context) error
}

type Handler struct {
	logger   *slog.Logger
	service  *Service
	jobs     Jobs
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, jobs Jobs) *Handler {
	return &Handler{logger: logger, service: service, jobs: jobs, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Register)
	r.Post("/refresh", h.Refresh)
	r.Get("/latest", h.Latest)
}

type registerRequest struct {
	RunDate     *time.Time                 `json:"run_date"`
	HorizonDays int                        `json:"horizon_days" validate:"required,min=1"`
	Balances    map[string]decimal.Decimal `json:"balances" validate:"required,min=1"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "horizon_days and a non-empty balances payload are required")
		return
	}

	run := Run{HorizonDays: req.HorizonDays, Balances: req.Balances}
	if req.RunDate != nil {
		run.RunDate = req.RunDate.UTC()
	}
	stored, err := h.service.Register(r.Context(), run)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if h.jobs != nil {
		if err := h.jobs.PlanGenerate(r.Context(), "forecast_registered"); err != nil {
			h.logger.Warn("enqueue regeneration failed", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, stored)
}

// Refresh queues a pull from the configured forecast provider.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job queue not configured")
		return
	}
	if err := h.jobs.ForecastRefresh(r.Context()); err != nil {
		h.logger.Error("enqueue forecast refresh failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "queued"})
}

func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	horizon, _ := strconv.Atoi(r.URL.Query().Get("horizon_days"))
	run, err := h.service.Latest(r.Context(), horizon)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Forecast Unavailable", err.Error())
			return
		}
		h.logger.Error("load latest forecast failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.service.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("list forecast runs failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}
