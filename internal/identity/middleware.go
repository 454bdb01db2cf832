package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/custodia-wms/custodia/internal/platform/httpx"
	"github.com/custodia-wms/custodia/internal/shared"
)

type contextKey string

const identityKey contextKey = "identity"

// FromContext returns the authenticated identity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

// RequireSession resolves the bearer token, stamps the identity and the
// performer display name onto the request context, and rejects requests
// without a live session.
func RequireSession(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
				return
			}
			ident, err := store.Get(r.Context(), token)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session expired or unknown")
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, ident)
			ctx = shared.ContextWithPerformer(ctx, ident.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows only the listed roles past. Mount inside RequireSession.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := FromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no session")
				return
			}
			if _, ok := allowed[ident.Role]; !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
