package items

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

// Handler wires HTTP endpoints for item coding.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the items handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/low-stock", h.lowStock)
	r.Get("/by-code/{code}", h.getByCode)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type itemRequest struct {
	Code             string  `json:"code" validate:"required"`
	Name             string  `json:"name" validate:"required"`
	UnitID           string  `json:"unit_id" validate:"required"`
	OpeningBalance   int     `json:"opening_balance" validate:"gte=0"`
	MinThreshold     int     `json:"min_threshold" validate:"gte=0"`
	ThresholdEnabled bool    `json:"threshold_enabled"`
	IsCustody        bool    `json:"is_custody"`
	InitialState     string  `json:"initial_state" validate:"omitempty,oneof=NEW USED SCRAP"`
	Price            float64 `json:"price" validate:"gte=0"`
	ShelfNumber      string  `json:"shelf_number"`
	BoxNumber        string  `json:"box_number"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := shared.ListFilters{Page: page, Limit: limit, Search: q.Get("search")}.Normalize()

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) getByCode(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item, err := h.service.Create(r.Context(), CreateInput{
		Code:             req.Code,
		Name:             req.Name,
		UnitID:           req.UnitID,
		OpeningBalance:   req.OpeningBalance,
		MinThreshold:     req.MinThreshold,
		ThresholdEnabled: req.ThresholdEnabled,
		IsCustody:        req.IsCustody,
		InitialState:     ledger.CustodyState(req.InitialState),
		Price:            req.Price,
		ShelfNumber:      req.ShelfNumber,
		BoxNumber:        req.BoxNumber,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		Code:             req.Code,
		Name:             req.Name,
		UnitID:           req.UnitID,
		MinThreshold:     req.MinThreshold,
		ThresholdEnabled: req.ThresholdEnabled,
		Price:            req.Price,
		ShelfNumber:      req.ShelfNumber,
		BoxNumber:        req.BoxNumber,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateItem):
		httpx.Problem(w, http.StatusConflict, "Duplicate Item", err.Error())
	case errors.Is(err, ledger.ErrEntityInUse):
		httpx.Problem(w, http.StatusConflict, "Entity In Use", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
