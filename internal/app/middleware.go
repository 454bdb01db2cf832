package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/unrolled/secure"

	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

// YearHeader selects the fiscal-year dataset for a request. Without it the
// active year applies.
const YearHeader = "X-Fiscal-Year"

// YearSelector resolves the active fiscal year with a short-lived cache so
// the lookup does not cost a query on every request.
type YearSelector struct {
	pool     *pgxpool.Pool
	fallback string

	mu        sync.Mutex
	cached    string
	refreshed time.Time
}

// NewYearSelector builds a YearSelector. The fallback year is used when no
// fiscal_years row is marked active.
func NewYearSelector(pool *pgxpool.Pool, fallback string) *YearSelector {
	return &YearSelector{pool: pool, fallback: fallback}
}

// Active returns the currently active fiscal year.
func (s *YearSelector) Active(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != "" && time.Since(s.refreshed) < 30*time.Second {
		return s.cached, nil
	}
	var year string
	err := s.pool.QueryRow(ctx, `SELECT year FROM fiscal_years WHERE active LIMIT 1`).Scan(&year)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.fallback == "" {
			return "", errors.New("app: no active fiscal year")
		}
		year = s.fallback
	} else if err != nil {
		return "", err
	}
	s.cached = year
	s.refreshed = time.Now()
	return year, nil
}

// Invalidate drops the cached year, forcing the next request to re-resolve.
func (s *YearSelector) Invalidate() {
	s.mu.Lock()
	s.cached = ""
	s.mu.Unlock()
}

// YearMiddleware stamps the fiscal-year dataset key onto the request context.
// A client may pin a historical year through the X-Fiscal-Year header.
func YearMiddleware(selector *YearSelector, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			year := r.Header.Get(YearHeader)
			if year == "" {
				active, err := selector.Active(r.Context())
				if err != nil {
					logger.Error("resolve fiscal year", slog.Any("error", err))
					httpx.Problem(w, http.StatusServiceUnavailable, "No Fiscal Year", "no active fiscal-year dataset")
					return
				}
				year = active
			}
			ctx := shared.ContextWithYear(r.Context(), year)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// MiddlewareStack installs the outer middleware chain applied to every
// request, authenticated or not.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
}
