package reconcile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-wms/custodia/internal/ledger"
	"github.com/custodia-wms/custodia/internal/platform/httpx"
)

// Handler wires HTTP endpoints for reconciliation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the reconciliation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.commit)
	r.Get("/archive", h.archive)
	r.Get("/archive/{docNumber}", h.archiveDetail)
}

type commitRequest struct {
	DocNumber string              `json:"doc_number" validate:"required"`
	Items     []commitItemRequest `json:"items" validate:"required,min=1,dive"`
}

type commitItemRequest struct {
	ItemID string         `json:"item_id" validate:"required"`
	Counts map[string]int `json:"counts" validate:"required,min=1"`
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CommitInput{DocNumber: req.DocNumber}
	for _, item := range req.Items {
		counts := make(map[ledger.CustodyState]int, len(item.Counts))
		for state, qty := range item.Counts {
			switch s := ledger.CustodyState(state); s {
			case ledger.StateNew, ledger.StateUsed, ledger.StateScrap:
				counts[s] = qty
			default:
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown custody state "+state)
				return
			}
		}
		input.Items = append(input.Items, ItemCounts{ItemID: item.ItemID, Counts: counts})
	}

	result, err := h.service.Commit(r.Context(), input)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	filter := ArchiveFilter(r.URL.Query().Get("type"))
	switch filter {
	case ArchiveAudit, ArchiveScrap:
	default:
		filter = ArchiveAll
	}
	groups, err := h.service.Archive(r.Context(), filter)
	if err != nil {
		h.logger.Error("settlement archive", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audits": groups})
}

func (h *Handler) archiveDetail(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.ArchiveDetail(r.Context(), chi.URLParam(r, "docNumber"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if lines == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateDocumentNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Document", err.Error())
	case errors.Is(err, ledger.ErrNothingToReconcile):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Nothing To Reconcile", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
