package routes

import (
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups every HTTP handler the service exposes
type Handlers struct {
	Health    *handlers.HealthHandler
	Lockout   *handlers.LockoutHandler
	Tokens    *handlers.TokenHandler
	Addresses *handlers.AddressHandler
	Monitor   *handlers.MonitorHandler
	Login     *handlers.LoginHandler
}

// Limiters are the per-surface rate limiting middlewares
type Limiters struct {
	Decision func(http.Handler) http.Handler
	Admin    func(http.Handler) http.Handler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	revocation auth.TokenRevocationChecker,
	limiters Limiters,
) {
	// Public routes - no authentication required
	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", promhttp.Handler())

	// Decision API, called by the authenticating service on every login
	router.Route("/v1", func(r chi.Router) {
		r.Use(limiters.Decision)
		r.Use(auth.AuthMiddleware(tokenManager, revocation))
		r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleService))

		r.Post("/login/check", h.Login.Check)
		r.Post("/login/failure", h.Login.RecordFailure)
		r.Post("/login/success", h.Login.RecordSuccess)
		r.Post("/tokens/check", h.Tokens.Check)
		r.Post("/events", h.Monitor.TrackEvent)
	})

	// Admin-only routes
	router.Route("/admin", func(r chi.Router) {
		r.Use(limiters.Admin)
		r.Use(auth.AuthMiddleware(tokenManager, revocation))
		r.Use(auth.RequireRole(auth.RoleAdmin))

		r.Get("/stats", h.Health.Stats)

		r.Route("/lockouts/{type}", func(r chi.Router) {
			r.Delete("/", h.Lockout.ClearAll)
			r.Get("/{identifier}", h.Lockout.GetStatus)
			r.Delete("/{identifier}", h.Lockout.ClearFailures)
			r.Post("/{identifier}/manual", h.Lockout.ManualLock)
			r.Delete("/{identifier}/manual", h.Lockout.ManualUnlock)
		})

		r.Post("/tokens/revoke", h.Tokens.Revoke)
		r.Delete("/tokens/revoke", h.Tokens.Unrevoke)

		r.Post("/users/{id}/revoke-all", h.Tokens.RevokeAll)
		r.Get("/users/{id}/addresses", h.Addresses.GetHistory)
		r.Delete("/users/{id}/addresses", h.Addresses.ClearHistory)

		r.Get("/monitor/metrics", h.Monitor.GetMetrics)
		r.Post("/monitor/reset", h.Monitor.Reset)
		r.Get("/alerts", h.Monitor.ListAlerts)
		r.Get("/alerts/{id}", h.Monitor.GetAlert)
	})
}
