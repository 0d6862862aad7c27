package app

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/gatewarden/internal/authz"
	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/grants"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/sectiontree"
	"github.com/gatewarden/gatewarden/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	GrantsHandler   *grants.Handler
	AuthzHandler    *authz.Handler
	TreeHandler     *sectiontree.Handler
	UsersHandler    *users.Handler
	AuthzMiddleware authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router. The admin API sits behind actor
// authentication plus an admin-or-superuser role guard; the check and listing
// endpoints only require an authenticated caller.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.AuthzMiddleware.Authenticate)

		r.Route("/authz", func(r chi.Router) {
			params.AuthzHandler.MountRoutes(r)
		})

		adminOnly := params.AuthzMiddleware.RequireRole(
			params.Config.SuperuserRole,
			params.Config.AdminRole,
		)
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Route("/catalog", func(r chi.Router) {
				params.CatalogHandler.MountRoutes(r)
			})
			r.Route("/grants", func(r chi.Router) {
				params.GrantsHandler.MountRoutes(r)
			})
			r.Route("/tree", func(r chi.Router) {
				params.TreeHandler.MountRoutes(r)
			})
			r.Route("/users", func(r chi.Router) {
				params.UsersHandler.MountRoutes(r)
			})
		})
	})

	return r
}
