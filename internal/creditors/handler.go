package creditors

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/shared"
	"github.com/cashplan-fin/cashplan-fin/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Post("/import", h.Import)
}

type listResponse struct {
	Creditors []Creditor `json:"creditors"`
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
		Page:   page,
		Limit:  limit,
		Search: r.URL.Query().Get("search"),
	}

	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list creditors failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if list == nil {
		list = []Creditor{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Creditors: list, Total: total, Page: page, Limit: limit})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid creditor id")
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "creditor not found")
			return
		}
		h.logger.Error("get creditor failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type importRecord struct {
	SupplierID  int64  `json:"supplier_id" validate:"required,gt=0"`
	InvoiceDate string `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate     string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Amount      string `json:"amount" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=payment credit"`
}

type importRequest struct {
	Records []importRecord `json:"records" validate:"required,min=1,dive"`
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	records := make([]Creditor, 0, len(req.Records))
	for i, rec := range req.Records {
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "record "+strconv.Itoa(i)+": invalid amount")
			return
		}
		invoiceDate, _ := time.Parse("2006-01-02", rec.InvoiceDate)
		dueDate, _ := time.Parse("2006-01-02", rec.DueDate)
		records = append(records, Creditor{
			SupplierID:  rec.SupplierID,
			InvoiceDate: invoiceDate,
			DueDate:     dueDate,
			Amount:      amount,
			Status:      CreditorStatus(rec.Status),
		})
	}

	inserted, err := h.service.Import(r.Context(), records)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("import creditors failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}
