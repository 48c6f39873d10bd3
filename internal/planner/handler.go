package planner

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/creditors"
	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/httpx"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

type Handler struct {
	logger      *slog.Logger
	engine      *Engine
	idempotency *shared.IdempotencyStore
	validate    *validator.Validate
}

func NewHandler(logger *slog.Logger, engine *Engine, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, engine: engine, idempotency: idempotency, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/generate", h.Generate)
	r.Get("/deficits", h.Deficits)
	r.Post("/override", h.Override)
}

type generateRequest struct {
	HorizonDays int `json:"horizon_days" validate:"omitempty,min=1,max=366"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "horizon_days must be between 1 and 366")
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "plans"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
				return
			}
			h.logger.Error("idempotency check failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
	}

	result, err := h.engine.Generate(r.Context(), req.HorizonDays)
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			if relErr := h.idempotency.Release(r.Context(), idemKey, "plans"); relErr != nil {
				h.logger.Warn("idempotency release failed", slog.Any("error", relErr))
			}
		}
		switch {
		case errors.Is(err, shared.ErrLockHeld):
			httpx.Problem(w, http.StatusConflict, "Run In Progress", "another generation run holds the lock")
		case errors.Is(err, forecast.ErrUnavailable):
			httpx.Problem(w, http.StatusServiceUnavailable, "Forecast Unavailable", err.Error())
		default:
			h.logger.Error("plan generation failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	if result.Entries == nil {
		result.Entries = []PlanEntry{}
	}
	if result.Deficits == nil {
		result.Deficits = []Deficit{}
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.CurrentPlan(r.Context())
	if err != nil {
		h.logger.Error("list plan failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if entries == nil {
		entries = []PlanEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

func (h *Handler) Deficits(w http.ResponseWriter, r *http.Request) {
	deficits, err := h.engine.Deficits(r.Context())
	if err != nil {
		if errors.Is(err, forecast.ErrUnavailable) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Forecast Unavailable", err.Error())
			return
		}
		h.logger.Error("compute deficits failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if deficits == nil {
		deficits = []Deficit{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deficits": deficits})
}

type overrideRequest struct {
	CreditorID int64           `json:"creditor_id" validate:"required,min=1"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Note       string          `json:"note" validate:"max=500"`
}

func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := map[string]string{}
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", fields)
			return
		}
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "invalid override request")
		return
	}
	date, err := time.Parse(forecast.DateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	entry, err := h.engine.Override(r.Context(), OverrideRequest{
		CreditorID: req.CreditorID,
		Date:       date,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, creditors.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "creditor not found")
		case errors.Is(err, ErrValidation):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		default:
			h.logger.Error("override failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
