package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/authority/internal/authority"
	"github.com/odyssey-erp/authority/internal/platform/httpx"
)

// Middleware wires rights checks for HTTP handlers. It relies on the
// authorization stored in the request context by the session middleware.
type Middleware struct {
	Catalogs Catalogs
	Logger   *slog.Logger
}

// RequireAny ensures the current administrator holds at least one of keys.
func (m Middleware) RequireAny(keys ...string) func(http.Handler) http.Handler {
	return m.require(Requirement(keys), false)
}

// RequireAll ensures the current administrator holds every one of keys.
func (m Middleware) RequireAll(keys ...string) func(http.Handler) http.Handler {
	return m.require(Requirement(keys), true)
}

func (m Middleware) require(req Requirement, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := authority.AuthorizationFromContext(r.Context())
			if auth.Rights == 0 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "logon required")
				return
			}
			catalog, err := m.Catalogs.Catalog(r.Context())
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac catalog", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if Granted(catalog, auth.Rights, req, all) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient rights")
		})
	}
}
