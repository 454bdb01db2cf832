package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/custodia-wms/custodia/internal/balances"
	"github.com/custodia-wms/custodia/internal/custody"
	"github.com/custodia-wms/custodia/internal/identity"
	"github.com/custodia-wms/custodia/internal/items"
	"github.com/custodia-wms/custodia/internal/masterdata"
	"github.com/custodia-wms/custodia/internal/movements"
	"github.com/custodia-wms/custodia/internal/reconcile"
	"github.com/custodia-wms/custodia/internal/reports"
	"github.com/custodia-wms/custodia/internal/years"
	"github.com/custodia-wms/custodia/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionStore      *identity.SessionStore
	YearSelector      *YearSelector
	IdentityHandler   *identity.Handler
	ItemsHandler      *items.Handler
	MovementsHandler  *movements.Handler
	CustodyHandler    *custody.Handler
	ReconcileHandler  *reconcile.Handler
	BalancesHandler   *balances.Handler
	ReportsHandler    *reports.Handler
	MasterDataHandler *masterdata.Handler
	YearsHandler      *years.Handler
	JobsHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.IdentityHandler.MountAuthRoutes)

	// Everything below requires a live session and runs against one
	// fiscal-year dataset.
	r.Group(func(r chi.Router) {
		r.Use(identity.RequireSession(params.SessionStore))
		r.Use(YearMiddleware(params.YearSelector, params.Logger))

		params.IdentityHandler.MountRoutes(r)
		r.Route("/items", params.ItemsHandler.MountRoutes)
		r.Route("/movements", params.MovementsHandler.MountRoutes)
		r.Route("/custody", params.CustodyHandler.MountRoutes)
		r.Route("/reconciliations", params.ReconcileHandler.MountRoutes)
		r.Route("/balances", params.BalancesHandler.MountRoutes)
		r.Route("/reports", params.ReportsHandler.MountRoutes)
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		r.Route("/years", func(r chi.Router) {
			r.Use(identity.RequireRole(identity.RoleAdmin, identity.RoleManager))
			// A rollover or deletion may move the active year.
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					next.ServeHTTP(w, r)
					if r.Method != http.MethodGet {
						params.YearSelector.Invalidate()
					}
				})
			})
			params.YearsHandler.MountRoutes(r)
		})
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(identity.RequireRole(identity.RoleAdmin, identity.RoleManager))
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	return r
}
