package movements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for movement recording.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the movements handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.edit)
	r.Post("/{id}/return", h.registerReturn)
	r.Delete("/{id}", h.delete)
}

type recordRequest struct {
	ItemID      string  `json:"item_id" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=INWARD OUTWARD"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	DocNumber   string  `json:"doc_number" validate:"required"`
	WarehouseID string  `json:"warehouse_id"`
	SupplierID  string  `json:"supplier_id"`
	EmployeeID  string  `json:"employee_id"`
	Note        string  `json:"note"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

type editRequest struct {
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	DocNumber string  `json:"doc_number"`
	Note      string  `json:"note"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type returnRequest struct {
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	DocNumber string `json:"doc_number" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := ListFilter{
		ItemID: q.Get("item_id"),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}

	movements, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements": movements,
		"total":     total,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	movement, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Record(r.Context(), RecordInput{
		ItemID:      req.ItemID,
		Type:        ledger.MovementType(req.Type),
		Quantity:    req.Quantity,
		DocNumber:   req.DocNumber,
		WarehouseID: req.WarehouseID,
		SupplierID:  req.SupplierID,
		EmployeeID:  req.EmployeeID,
		Note:        req.Note,
		UnitPrice:   req.UnitPrice,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Edit(r.Context(), chi.URLParam(r, "id"), EditInput{
		Quantity:  req.Quantity,
		DocNumber: req.DocNumber,
		Note:      req.Note,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) registerReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.RegisterReturn(r.Context(), chi.URLParam(r, "id"), ReturnInput{
		Quantity:  req.Quantity,
		DocNumber: req.DocNumber,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrReturnExceedsAvailable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	case errors.Is(err, ledger.ErrDuplicateDocumentNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Document", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
