// Package api provides the HTTP API for bbagrid.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/bbagrid/bbagrid/internal/api/handler"
	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/auth"
	"github.com/bbagrid/bbagrid/internal/device"
	"github.com/bbagrid/bbagrid/internal/featureflags"
	"github.com/bbagrid/bbagrid/internal/locator"
	"github.com/bbagrid/bbagrid/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger
	Metrics   *middleware.Metrics

	AuthService *auth.Service
	Devices     *device.Service
	Locator     *locator.Service
	Flags       *featureflags.Service
	Registry    *resilience.Registry
	Checks      []handler.DependencyCheck

	// RateLimit is the per-minute limit for standard endpoints. Zero or
	// negative disables every rate limiter.
	RateLimit int

	// RequireTLS rejects plain HTTP requests not forwarded from TLS.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) (*chi.Mux, error) {
	if cfg.AuthService == nil || cfg.Devices == nil || cfg.Locator == nil || cfg.Flags == nil {
		return nil, errors.New("router: auth, device, locator and flag services are required")
	}

	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // Reject non-JSON bodies

	table := cfg.Locator.Table()

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Table:     table,
		Registry:  cfg.Registry,
		Flags:     cfg.Flags,
		Checks:    cfg.Checks,
	})
	gridHandler, err := handler.NewGridHandler(table, cfg.Logger)
	if err != nil {
		return nil, err
	}
	locateHandler := handler.NewLocateHandler(cfg.Locator, cfg.Logger)
	deviceHandler := handler.NewDeviceHandler(handler.DeviceHandlerConfig{
		Devices: cfg.Devices,
		Locator: cfg.Locator,
		Auth:    cfg.AuthService,
		Flags:   cfg.Flags,
		Logger:  cfg.Logger,
	})
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.Flags, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	authRateLimit := passThrough
	fixRateLimit := passThrough
	standardRateLimit := passThrough
	principalRateLimit := passThrough
	if cfg.RateLimit > 0 {
		standard := middleware.PerMinute(cfg.RateLimit)
		authRateLimit = middleware.RateLimitByIP(middleware.AuthRateLimit)
		fixRateLimit = middleware.RateLimitByPrincipal(middleware.FixRateLimit)
		standardRateLimit = middleware.RateLimitByIP(standard)
		principalRateLimit = middleware.RateLimitByPrincipal(standard)
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, status requires admin)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware, middleware.RequireAdmin).Get("/status", opsHandler.SystemStatus)
		})

		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit)
			r.Post("/admin-token", authHandler.AdminToken)
		})

		// Grid endpoints (public)
		r.Route("/grid", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", gridHandler.Summary)
			r.Get("/geojson", gridHandler.GeoJSON)
			r.Get("/blocks/{row}/{col}", gridHandler.Block)
		})

		r.With(standardRateLimit).Post("/locate", locateHandler.Locate)

		r.Route("/devices", func(r chi.Router) {
			r.With(authRateLimit).Post("/", deviceHandler.RegisterDevice)

			r.Route("/{deviceId}", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RequireDevice("deviceId"))

				r.With(principalRateLimit).Get("/", deviceHandler.GetDevice)
				r.With(principalRateLimit).Delete("/", deviceHandler.DeleteDevice)
				r.With(principalRateLimit).Put("/mode", deviceHandler.SetMode)
				r.With(fixRateLimit).Post("/fixes", deviceHandler.RecordFix)
				r.With(principalRateLimit).Get("/track", deviceHandler.GetTrack)
				r.With(authRateLimit).Post("/token", deviceHandler.RefreshToken)
			})
		})

		// Admin endpoints (admin token)
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RequireAdmin)
			r.Use(principalRateLimit)

			r.Get("/devices", deviceHandler.ListDevices)

			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r, nil
}

func passThrough(next http.Handler) http.Handler {
	return next
}
