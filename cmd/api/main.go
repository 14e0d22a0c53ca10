// Package main provides the entrypoint for the HerShield API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/api"
	"github.com/hershield/hershield/internal/api/handler"
	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/auth"
	"github.com/hershield/hershield/internal/config"
	"github.com/hershield/hershield/internal/database"
	"github.com/hershield/hershield/internal/geocode"
	"github.com/hershield/hershield/internal/geocode/nominatim"
	"github.com/hershield/hershield/internal/journey"
	"github.com/hershield/hershield/internal/monitor"
	"github.com/hershield/hershield/internal/provider/resilience"
	"github.com/hershield/hershield/internal/safety"
	"github.com/hershield/hershield/internal/safety/oracle"
	"github.com/hershield/hershield/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "hershield-api"

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting HerShield API")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if tp.Exporting() {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
	safetyMetrics, err := tp.SafetyMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize safety metrics")
	}

	registry := resilience.NewRegistry()
	var checks []handler.DependencyCheck

	// Safety scoring: the oracle when enabled, the deterministic fallback otherwise.
	var oracleScorer safety.Scorer
	if cfg.OracleEnabled {
		oracleScorer = oracle.NewClient(oracle.ClientConfig{
			BaseURL:  cfg.OracleURL,
			Timeout:  cfg.OracleTimeout,
			Registry: registry,
			Logger:   log,
		})
		log.Info().Str("url", cfg.OracleURL).Msg("safety oracle enabled")
	} else {
		log.Warn().Msg("safety oracle disabled - all routes use fallback scores")
	}

	scorer := safety.NewService(safety.ServiceConfig{
		Oracle:          oracleScorer,
		Logger:          log,
		Metrics:         safetyMetrics,
		OracleTimeout:   cfg.OracleTimeout,
		CacheTTL:        cfg.ScoreCacheTTL,
		CacheGridSize:   cfg.ScoreCacheGrid,
		StaleIfErrorTTL: cfg.ScoreStaleTTL,
	})

	// Geocoding cache: Redis when enabled so instances share answers.
	var geocodeCache geocode.Cache = geocode.NewMemoryCache(cfg.GeocodeCacheTTL)
	if cfg.RedisEnabled {
		redisClient, err := geocode.NewRedisClient(ctx, geocode.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		geocodeCache = geocode.NewRedisCache(redisClient, cfg.GeocodeCacheTTL, log)
		checks = append(checks, handler.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis geocode cache connected")
	}

	geocoder := geocode.New(geocode.Config{
		Provider: nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:   cfg.NominatimURL,
			UserAgent: cfg.GeocodeUserAgent,
			Timeout:   cfg.GeocodeTimeout,
			Registry:  registry,
			Logger:    log,
		}),
		Cache:        geocodeCache,
		Logger:       log,
		Timeout:      cfg.GeocodeTimeout,
		RegionSuffix: cfg.GeocodeRegionSuffix,
		Default:      &cfg.DefaultLocation,
	})

	// Alert notifiers: one delivery path, so responders never see an alert twice.
	var notifiers []alert.Notifier
	switch delivery := cfg.AlertDelivery(); delivery {
	case config.AlertDeliveryRelayed:
		pubsubNotifier, err := alert.NewPubSubNotifier(ctx, alert.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubAlertTopic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Str("project", cfg.PubSubProjectID).Msg("failed to initialize pubsub notifier")
		}
		defer pubsubNotifier.Close()
		notifiers = append(notifiers, pubsubNotifier)
		log.Info().
			Str("delivery", string(delivery)).
			Str("topic", cfg.PubSubAlertTopic).
			Msg("alerts are published for the relay worker")
	case config.AlertDeliveryDirect:
		notifiers = append(notifiers, alert.NewWebhookNotifier(alert.WebhookConfig{
			BaseURL:  cfg.AlertWebhookURL,
			Timeout:  cfg.AlertNotifyTimeout,
			Registry: registry,
			Logger:   log,
		}))
		log.Info().Str("delivery", string(delivery)).Msg("alerts are posted to the webhook")
	default:
		log.Warn().Msg("no alert notifiers configured - alerts are only recorded")
	}

	var archive alert.Archive
	if cfg.DatabaseEnabled {
		pool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Str("database", cfg.Database.Redacted()).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().Str("database", cfg.Database.Redacted()).Msg("database connected")

		checks = append(checks, handler.DependencyCheck{Name: "database", Check: pool.Ping})

		if cfg.AlertArchiveEnabled {
			pgArchive := alert.NewPostgresArchive(pool)
			if err := pgArchive.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to prepare alert archive")
			}
			archive = pgArchive
			log.Info().Msg("alert archive enabled")
		}
	}

	dispatcher := alert.NewDispatcher(alert.DispatcherConfig{
		Notifiers:     notifiers,
		Archive:       archive,
		NotifyTimeout: cfg.AlertNotifyTimeout,
		Metrics:       safetyMetrics,
		Logger:        log,
	})

	journeys := journey.NewManager(journey.Config{
		Geocoder:        geocoder,
		Scorer:          scorer,
		Dispatcher:      dispatcher,
		Monitor:         monitor.NewDeviationMonitor(cfg.DeviationThresholdMeters, cfg.DeviationStrategy),
		DefaultLocation: cfg.DefaultLocation,
		Metrics:         safetyMetrics,
		Logger:          log,
	})

	// Identity: signed bearer tokens when a key is configured, the X-User-Id header otherwise.
	var verifier auth.TokenVerifier
	if cfg.JWTSigningKey != "" {
		jwtService, err := auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize jwt service")
		}
		verifier = jwtService
		log.Info().Msg("bearer token authentication enabled")
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set - identifying users by X-User-Id header, not secure for production")
	}

	emergencyNumbers := make([]models.EmergencyNumber, len(cfg.EmergencyNumbers))
	for i, n := range cfg.EmergencyNumbers {
		emergencyNumbers[i] = models.EmergencyNumber{Name: n.Name, Number: n.Number}
	}

	router := api.NewRouter(api.RouterConfig{
		Version:                 Version,
		BuildTime:               BuildTime,
		Logger:                  log,
		ServiceName:             serviceName,
		Metrics:                 httpMetrics,
		Verifier:                verifier,
		Journeys:                journeys,
		Registry:                registry,
		ReadinessChecks:         checks,
		EmergencyNumbers:        emergencyNumbers,
		AlertRecentWindow:       cfg.AlertRecentWindow,
		RequireTLS:              cfg.RequireTLS,
		WebSocketOriginPatterns: cfg.WebSocketOriginPatterns,
	})

	// Only headers are time-bounded: the monitoring stream is a long-lived
	// hijacked connection and inherits any read or write deadline.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
