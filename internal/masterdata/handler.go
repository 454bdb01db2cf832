package masterdata

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for master data.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the master-data handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers master-data routes grouped per entity kind.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/units", func(r chi.Router) {
		r.Get("/", h.listUnits)
		r.Post("/", h.createUnit)
		r.Put("/{id}", h.rename(KindUnit))
		r.Delete("/{id}", h.delete(KindUnit))
	})
	r.Route("/warehouses", func(r chi.Router) {
		r.Get("/", h.listWarehouses)
		r.Post("/", h.createWarehouse)
		r.Put("/{id}", h.rename(KindWarehouse))
		r.Delete("/{id}", h.delete(KindWarehouse))
	})
	r.Route("/suppliers", func(r chi.Router) {
		r.Get("/", h.listSuppliers)
		r.Post("/", h.createSupplier)
		r.Put("/{id}", h.rename(KindSupplier))
		r.Delete("/{id}", h.delete(KindSupplier))
	})
	r.Route("/employees", func(r chi.Router) {
		r.Get("/", h.listEmployees)
		r.Post("/", h.createEmployee)
		r.Put("/{id}", h.rename(KindEmployee))
		r.Delete("/{id}", h.delete(KindEmployee))
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

type supplierRequest struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.Units(r.Context())
	if err != nil {
		h.logger.Error("list units", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"units": units})
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.service.Warehouses(r.Context())
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": warehouses})
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.Suppliers(r.Context())
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.service.Employees(r.Context())
	if err != nil {
		h.logger.Error("list employees", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	unit, err := h.service.CreateUnit(r.Context(), req.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, unit)
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.CreateWarehouse(r.Context(), req.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, warehouse)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), req.Name, req.Phone, req.Address)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) createEmployee(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeName(w, r)
	if !ok {
		return
	}
	employee, err := h.service.CreateEmployee(r.Context(), req.Name)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, employee)
}

func (h *Handler) rename(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeName(w, r)
		if !ok {
			return
		}
		if err := h.service.Rename(r.Context(), kind, chi.URLParam(r, "id"), req.Name); err != nil {
			h.respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) delete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.service.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
			h.respondErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) decodeName(w http.ResponseWriter, r *http.Request) (nameRequest, bool) {
	var req nameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrEntityInUse):
		httpx.Problem(w, http.StatusConflict, "Entity In Use", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
