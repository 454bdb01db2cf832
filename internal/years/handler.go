package years

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for fiscal-year management.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the years handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fiscal-year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.startNewYear)
	r.Delete("/{year}", h.remove)
}

type startYearRequest struct {
	Year string `json:"year" validate:"required,len=4,numeric"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("years list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"years": years})
}

func (h *Handler) startNewYear(w http.ResponseWriter, r *http.Request) {
	var req startYearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	year, err := h.service.StartNewYear(r.Context(), req.Year)
	if err != nil {
		if errors.Is(err, ErrYearExists) {
			httpx.Problem(w, http.StatusConflict, "Year Exists", "a dataset for this fiscal year already exists")
			return
		}
		h.logger.Error("start new year", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, year)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "year")); err != nil {
		switch {
		case errors.Is(err, ErrYearUnknown):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "fiscal year does not exist")
		case errors.Is(err, ErrYearActive):
			httpx.Problem(w, http.StatusConflict, "Year Active", "the active fiscal year cannot be deleted")
		default:
			h.logger.Error("delete year", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
