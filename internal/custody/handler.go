package custody

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for custody transactions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the custody handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers custody routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.record)
	r.Get("/holders", h.currentHolders)
	r.Post("/settle", h.instantSettle)
}

type recordRequest struct {
	ItemID     string `json:"item_id" validate:"required"`
	EmployeeID string `json:"employee_id" validate:"required"`
	Type       string `json:"type" validate:"required,oneof=HANDOVER RETURN"`
	State      string `json:"state" validate:"required,oneof=NEW USED SCRAP"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	DocNumber  string `json:"doc_number" validate:"required"`
	Note       string `json:"note"`
}

type settleRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	ItemID     string `json:"item_id" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, total, err := h.service.List(r.Context(), ListFilter{
		ItemID:     q.Get("item_id"),
		EmployeeID: q.Get("employee_id"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("list custody events", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
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
		ItemID:     req.ItemID,
		EmployeeID: req.EmployeeID,
		Type:       ledger.CustodyEventType(req.Type),
		State:      ledger.CustodyState(req.State),
		Quantity:   req.Quantity,
		DocNumber:  req.DocNumber,
		Note:       req.Note,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) instantSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	event, err := h.service.InstantSettle(r.Context(), req.EmployeeID, req.ItemID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, event)
}

func (h *Handler) currentHolders(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.CurrentHolders(r.Context())
	if err != nil {
		h.logger.Error("current holders report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"holders": rows})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, ledger.ErrInsufficientStateBalance),
		errors.Is(err, ledger.ErrStateTransitionViolation),
		errors.Is(err, ledger.ErrInsufficientEmployeeDebt):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Rejected", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
