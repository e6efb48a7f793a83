// Package api provides the HTTP API for CommutePulse.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/api/handler"
	"github.com/commutepulse/commutepulse/internal/api/middleware"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/pattern"
	"github.com/commutepulse/commutepulse/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// TokenValidator authenticates /me requests.
	TokenValidator middleware.TokenValidator

	// RateLimit overrides the per-user request budget per minute.
	RateLimit int

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	Registry          *resilience.Registry
	DependencyChecks  []handler.DependencyCheck
	Routes            commute.RouteRepository
	Settings          departure.SettingRepository
	PatternEstimator  *pattern.Estimator
	DelayMonitor      *delay.Monitor
	AlternativeFinder *alternative.Finder
	Calculator        *departure.Calculator
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "commutepulse-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.DependencyChecks...)
	patternHandler := handler.NewPatternHandler(cfg.PatternEstimator)
	routeHandler := handler.NewRouteHandler(cfg.Routes, cfg.DelayMonitor, cfg.AlternativeFinder, cfg.Logger)
	departureHandler := handler.NewDepartureHandler(cfg.Settings, cfg.Calculator, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.TokenValidator)

	userLimit := middleware.StandardRateLimit
	if cfg.RateLimit > 0 {
		userLimit.RequestLimit = cfg.RateLimit
	}
	liveRateLimit := middleware.RateLimitByUser(middleware.LiveCheckRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.StandardRateLimit))
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(userLimit))
			r.Use(middleware.RequireJSON)

			r.Get("/patterns/{commuteType}", patternHandler.GetPattern)

			r.Route("/routes/{routeId}", func(r chi.Router) {
				r.Use(liveRateLimit)
				r.Get("/delays", routeHandler.GetDelays)
				r.Get("/alternatives", routeHandler.GetAlternatives)
			})

			r.Route("/departures/{settingId}", func(r chi.Router) {
				r.Get("/", departureHandler.GetDeparture)
				r.With(liveRateLimit).Post("/calculate", departureHandler.Calculate)
				r.Post("/depart", departureHandler.MarkDeparted)
			})
		})
	})

	return r
}
