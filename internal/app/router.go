package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authorityhttp "github.com/odyssey-erp/authority/internal/authority/http"
	"github.com/odyssey-erp/authority/internal/observability"
	"github.com/odyssey-erp/authority/internal/rbac"
	"github.com/odyssey-erp/authority/internal/rights"
	"github.com/odyssey-erp/authority/internal/shared"
	"github.com/odyssey-erp/authority/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	Authorizer       Authorizer
	RBACMiddleware   rbac.Middleware
	AuthorityHandler *authorityhttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			Authorizer:     params.Authorizer,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}

		r.Route("/auth", params.AuthorityHandler.MountAuthRoutes)
		r.Route("/admin", params.AuthorityHandler.MountAdminRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAny(rights.KeyAdmin))
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	return r
}
