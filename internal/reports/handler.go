package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock-card/{itemID}", h.stockCard)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from, to time.Time
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Range", "to must be YYYY-MM-DD")
			return
		}
		// inclusive end of day
		to = t.Add(24*time.Hour - time.Nanosecond)
	}

	state := ledger.CustodyState(q.Get("state"))
	switch state {
	case "", ledger.StateNew, ledger.StateUsed, ledger.StateScrap:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Invalid State", "state must be NEW, USED or SCRAP")
		return
	}

	view, err := h.service.StockCard(r.Context(), chi.URLParam(r, "itemID"), from, to, state)
	if err != nil {
		h.logger.Error("stock card", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}
