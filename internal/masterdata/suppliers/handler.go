package suppliers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/httpx"
)

// PendingRules queues a retry pass over rules stored unapplied, typically
// because they name a supplier that did not exist yet.
type PendingRules interface {
	Retry(ctx context.Context) error
}

type Handler struct {
	logger   *slog.Logger
	service  *Service
	pending  PendingRules
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, pending PendingRules) *Handler {
	return &Handler{logger: logger, service: service, pending: pending, validate: validator.New()}
}

type supplierForm struct {
	Name         string `json:"name" validate:"required,max=200"`
	Type         string `json:"type" validate:"required,oneof=core flex"`
	MaxDelayDays *int   `json:"max_delay_days" validate:"omitempty,min=0"`
}

type listResponse struct {
	Suppliers []Supplier `json:"suppliers"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = shared.DefaultPage
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = shared.DefaultLimit
	}
	if limit > shared.MaxLimit {
		limit = shared.MaxLimit
	}

	filters := shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  r.URL.Query().Get("search"),
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		filters.SupplierType = &t
	}

	suppliers, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list suppliers failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if suppliers == nil {
		suppliers = []Supplier{}
	}

	httpx.JSON(w, http.StatusOK, listResponse{Suppliers: suppliers, Total: total, Page: page, Limit: limit})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}

	supplier, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var form supplierForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields, ok := h.validateForm(form); !ok {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", fields)
		return
	}

	created, err := h.service.Create(r.Context(), formToSupplier(form))
	if err != nil {
		h.respondError(w, "create supplier", err)
		return
	}
	if h.pending != nil {
		if err := h.pending.Retry(r.Context()); err != nil {
			h.logger.Warn("enqueue pending rules retry failed", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}

	var form supplierForm
	if err := httpx.DecodeJSON(w, r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if fields, ok := h.validateForm(form); !ok {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "Validation Failed", fields)
		return
	}

	supplier := formToSupplier(form)
	if form.MaxDelayDays == nil {
		current, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.respondError(w, "get supplier", err)
			return
		}
		supplier.MaxDelayDays = current.MaxDelayDays
	}

	if err := h.service.Update(r.Context(), id, supplier); err != nil {
		h.respondError(w, "update supplier", err)
		return
	}
	updated, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid supplier id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, "delete supplier", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validateForm(form supplierForm) (map[string]string, bool) {
	if err := h.validate.Struct(form); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		return fields, false
	}
	return nil, true
}

func formToSupplier(form supplierForm) Supplier {
	s := Supplier{Name: form.Name, Type: form.Type, MaxDelayDays: -1}
	if form.MaxDelayDays != nil {
		s.MaxDelayDays = *form.MaxDelayDays
	}
	return s
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "supplier not found")
	case errors.Is(err, shared.ErrInvalidID):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
