// Package api provides the HTTP API for HerShield.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/handler"
	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/auth"
	"github.com/hershield/hershield/internal/journey"
	"github.com/hershield/hershield/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Verifier authenticates bearer tokens. When nil the caller identity is
	// taken from the X-User-Id header, which is only suitable for development.
	Verifier auth.TokenVerifier

	// Journeys owns the per-user plan, monitoring session, contacts and alerts.
	Journeys *journey.Manager

	// Registry exposes outbound provider health on /v1/ops/status (optional).
	Registry *resilience.Registry

	// ReadinessChecks are probed by /v1/ops/ready and /v1/ops/status.
	ReadinessChecks []handler.DependencyCheck

	EmergencyNumbers  []models.EmergencyNumber
	AlertRecentWindow int
	RequireTLS        bool

	// WebSocketOriginPatterns are the browser origins allowed on the monitoring stream.
	WebSocketOriginPatterns []string
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "hershield-api"
	}

	// Request IDs come first so spans, metrics and logs can all carry them.
	// Recovery sits inside the logger so a panic is still logged as a 500.
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

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.ReadinessChecks...)
	planHandler := handler.NewPlanHandler(cfg.Journeys, cfg.Logger)
	monitoringHandler := handler.NewMonitoringHandler(cfg.Journeys, cfg.Logger)
	streamHandler := handler.NewStreamHandler(cfg.Journeys, cfg.WebSocketOriginPatterns, cfg.Logger)
	alertHandler := handler.NewAlertHandler(cfg.Journeys, cfg.AlertRecentWindow, cfg.Logger)
	contactHandler := handler.NewContactHandler(cfg.Journeys, cfg.Logger)
	emergencyHandler := handler.NewEmergencyHandler(cfg.EmergencyNumbers)

	identity := middleware.HeaderIdentity
	if cfg.Verifier != nil {
		identity = middleware.Auth(cfg.Verifier)
	}

	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)
	expensiveRateLimit := middleware.RateLimitByUser(middleware.ExpensiveRateLimit)
	tickRateLimit := middleware.RateLimitByUser(middleware.TickRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(identity).Get("/status", opsHandler.SystemStatus)
		})

		// Emergency numbers must be reachable without an account.
		r.With(middleware.RateLimitByIP(middleware.StandardRateLimit)).
			Get("/emergency-numbers", emergencyHandler.ListNumbers)

		// SOS is never rate limited and accepts any declared body type, since
		// beacon-style clients post JSON as text/plain.
		r.With(identity).Post("/alerts:sos", alertHandler.SOS)

		r.Group(func(r chi.Router) {
			r.Use(identity)
			r.Use(middleware.RequireJSON)

			r.With(expensiveRateLimit).Post("/routes:plan", planHandler.PlanRoutes)
			r.With(tickRateLimit).Post("/monitoring:tick", monitoringHandler.Tick)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)

				r.Get("/routes", planHandler.CurrentRoutes)
				r.Get("/routes/{routeId}/kml", planHandler.ExportKML)

				r.Get("/monitoring", monitoringHandler.Status)
				r.Put("/monitoring/route", monitoringHandler.SelectRoute)
				r.Post("/monitoring:start", monitoringHandler.Start)
				r.Post("/monitoring:stop", monitoringHandler.Stop)
				r.Get("/monitoring/stream", streamHandler.ServeWS)

				r.Get("/alerts", alertHandler.ListAlerts)

				r.Route("/contacts", func(r chi.Router) {
					r.Get("/", contactHandler.ListContacts)
					r.Post("/", contactHandler.CreateContact)
					r.Delete("/{contactId}", contactHandler.DeleteContact)
				})
			})
		})
	})

	return r
}
