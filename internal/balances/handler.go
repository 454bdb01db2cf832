package balances

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the balances dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the balances handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.overview)
	r.Post("/{itemID}/destroy-scrap", h.destroyScrap)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Overview(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("balances overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": rows})
}

func (h *Handler) destroyScrap(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.DestroyScrap(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidQuantity) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Nothing To Destroy", "item has no scrap balance")
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, event)
}
