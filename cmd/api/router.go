package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atlasgate/atlasgate/internal/config"
	"github.com/atlasgate/atlasgate/internal/handler"
	"github.com/atlasgate/atlasgate/internal/metrics"
	"github.com/atlasgate/atlasgate/internal/middleware"
)

// routerDeps carries everything the router mounts. limiter may be nil.
type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder

	keys     middleware.KeyAuthenticator
	sessions middleware.SessionValidator
	quota    middleware.QuotaEvaluator
	limiter  middleware.Limiter

	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	auth    *handler.AuthHandler
	apiKeys *handler.APIKeyHandler
	usage   *handler.UsageHandler
	country *handler.CountryHandler
	admin   *handler.AdminHandler
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger, d.recorder))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: d.cfg.IsDevelopment()}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.cfg.GetCORSAllowedOrigins())))
	r.Use(middleware.MaxBodySize(d.cfg.MaxRequestBodySize))

	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:          d.logger,
		Limiter:         d.limiter,
		Metrics:         d.recorder,
		IPRatePerMinute: d.cfg.RateLimitAuthRPM,
		IPBurst:         d.cfg.RateLimitAuthBurst,
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Post("/register", d.auth.Register)
		r.Post("/register-admin", d.auth.RegisterAdmin)
		r.Post("/login", d.auth.Login)
		r.Post("/admin-login", d.auth.AdminLogin)
	})

	r.Get("/api/usage/total-api-keys", d.apiKeys.Total)

	// API key callers.
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(middleware.AuthConfig{Logger: d.logger, Keys: d.keys}))
		if d.cfg.RateLimitBurstEnabled {
			r.Use(middleware.RateLimitAPI(rateLimitCfg))
		}

		r.Get("/api/usage", d.usage.Quota)
		r.With(middleware.Quota(middleware.QuotaConfig{
			Logger:  d.logger,
			Quota:   d.quota,
			Metrics: d.recorder,
		})).Get("/api/country", d.country.Get)
	})

	// Session callers. State-changing requests also need the CSRF token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(middleware.SessionConfig{Logger: d.logger, Sessions: d.sessions}))
		r.Use(middleware.CSRF(d.logger))

		r.Post("/api/keys", d.apiKeys.Create)
		r.Get("/api/keys", d.apiKeys.List)
		r.With(middleware.RequireAdmin()).Get("/api/keys/user/{userId}", d.apiKeys.ListForUser)
		r.Delete("/api/keys/{keyId}", d.apiKeys.Revoke)

		r.Post("/api/usage/log", d.usage.Log)
		r.Get("/api/usage/{userId}", d.usage.ByEndpoint)

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/with-usage", d.admin.ListUsersWithUsage)
			r.Patch("/update-plan/{userId}", d.admin.UpdatePlan)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
