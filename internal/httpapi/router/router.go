// Package router assembles the middleware pipeline and the route table.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/healthguard/surveillance/internal/app"
	"github.com/healthguard/surveillance/internal/httpapi"
	"github.com/healthguard/surveillance/internal/httpapi/handlers"
	"github.com/healthguard/surveillance/internal/push"
)

// New builds the full handler tree: the versioned API under /api/v1,
// the websocket endpoint at /ws and the prometheus exposition at
// /metrics (ungated, unversioned).
func New(c *app.Container) http.Handler {
	cfg := c.Cfg
	r := chi.NewRouter()

	r.Use(httpapi.WithRequestID)
	r.Use(httpapi.WithRecover(c.Collector))
	r.Use(httpapi.WithLogging(c.Collector))
	r.Use(httpapi.WithCORS(cfg.Server.CORSAllowedOrigins))
	r.Use(httpapi.WithTenant(cfg.Tenancy.Header))

	r.Handle("/metrics", httpapi.RegisterMetrics(c.Push.Count))
	r.Get("/ws", push.Handler(c.Push))

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpapi.WithFeatureGate(cfg.Tenancy.Gates, c.Flags))

		api.Route("/auth", func(auth chi.Router) {
			// Credential endpoints carry the rate limit; session
			// endpoints only need the guard.
			auth.Group(func(pub chi.Router) {
				if cfg.Rate.Enabled && c.Limiter != nil {
					pub.Use(httpapi.WithRateLimit(c.Limiter))
				}
				pub.Post("/login", handlers.NewLoginHandler(c))
				pub.Post("/refresh", handlers.NewRefreshHandler(c))
				pub.Post("/register", handlers.NewRegisterHandler(c))
				pub.Post("/reset-password", handlers.NewResetPasswordHandler(c))
			})
			auth.Group(func(priv chi.Router) {
				priv.Use(httpapi.RequireAuth(c.Tokens))
				priv.Get("/me", handlers.NewMeHandler(c))
				priv.Post("/change-password", handlers.NewChangePasswordHandler(c))
				priv.Post("/logout", handlers.NewLogoutHandler(c))
			})
		})

		api.Route("/clients", func(cl chi.Router) {
			cl.Use(httpapi.RequireAuth(c.Tokens))

			cl.Group(func(admin chi.Router) {
				admin.Use(httpapi.RequireAdmin)
				admin.Get("/", handlers.NewListClientsHandler(c))
				admin.Post("/", handlers.NewCreateClientHandler(c))
				admin.Get("/analytics", handlers.NewClientAnalyticsHandler(c))
			})

			cl.Route("/{id}", func(one chi.Router) {
				one.Group(func(scoped chi.Router) {
					scoped.Use(httpapi.RequireAccountScope)
					scoped.Get("/", handlers.NewGetClientHandler(c))
					scoped.Get("/usage", handlers.NewListUsageHandler(c))
					scoped.Post("/usage", handlers.NewRecordUsageHandler(c))
					scoped.Get("/billing", handlers.NewListBillingHandler(c))
					scoped.Get("/settings", handlers.NewGetSettingsHandler(c))
					scoped.Get("/activity", handlers.NewListActivityHandler(c))
				})
				one.Group(func(admin chi.Router) {
					admin.Use(httpapi.RequireAdmin)
					admin.Put("/", handlers.NewUpdateClientHandler(c))
					admin.Delete("/", handlers.NewDeleteClientHandler(c))
					admin.Post("/suspend", handlers.NewSuspendClientHandler(c))
					admin.Post("/activate", handlers.NewActivateClientHandler(c))
					admin.Put("/settings", handlers.NewUpdateSettingsHandler(c))
				})
			})
		})

		api.Route("/monitoring", func(mon chi.Router) {
			mon.Get("/health", handlers.NewHealthHandler(c))

			mon.Group(func(priv chi.Router) {
				priv.Use(httpapi.RequireAuth(c.Tokens))
				priv.Get("/status", handlers.NewStatusHandler(c))
				priv.Get("/metrics", handlers.NewMetricsSnapshotHandler(c))
				priv.Get("/health-checks", handlers.NewHealthChecksHandler(c))
				priv.Get("/alerts", handlers.NewAlertsHandler(c))
				priv.Get("/cache/stats", handlers.NewCacheStatsHandler(c))

				priv.Group(func(admin chi.Router) {
					admin.Use(httpapi.RequireAdmin)
					admin.Post("/cache/clear", handlers.NewCacheClearHandler(c))
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpapi.WriteDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpapi.WriteDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
