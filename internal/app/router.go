package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-access/internal/audit"
	"github.com/meridian-erp/meridian-access/internal/auth"
	"github.com/meridian-erp/meridian-access/internal/groups"
	"github.com/meridian-erp/meridian-access/internal/observability"
	"github.com/meridian-erp/meridian-access/internal/rbac"
	"github.com/meridian-erp/meridian-access/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AuthService   *auth.Service
	AuthHandler   *auth.Handler
	GroupsHandler *groups.Handler
	RBACHandler   *rbac.Handler
	UsersHandler  *users.Handler
	AuditHandler  *audit.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults. Everything
// except login and the health probe sits behind RequireAuth.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		ActorContext: params.AuthService.ActorContext,
		Metrics:      params.Metrics,
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

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Route("/groups", func(r chi.Router) {
			params.GroupsHandler.MountRoutes(r)
			params.RBACHandler.MountGroupRoutes(r)
		})
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r)
			params.RBACHandler.MountUserRoutes(r)
		})
		r.Route("/roles", params.RBACHandler.MountRoleRoutes)
		r.Route("/permissions", params.RBACHandler.MountPermissionRoutes)
		r.Route("/audit", params.AuditHandler.MountRoutes)
	})

	return r
}
