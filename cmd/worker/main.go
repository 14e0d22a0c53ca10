// Package main provides the entrypoint for the HerShield alert relay worker.
// It consumes the alert topic and delivers every alert to the responder webhook,
// so the API can publish and return while delivery is retried out of band.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/alert"
	"github.com/hershield/hershield/internal/config"
	"github.com/hershield/hershield/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "hershield-worker"

	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting HerShield alert relay")

	switch {
	case cfg.PubSubProjectID == "":
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required")
	case cfg.AlertWebhookURL == "":
		log.Fatal().Msg("ALERT_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webhook := alert.NewWebhookNotifier(alert.WebhookConfig{
		BaseURL: cfg.AlertWebhookURL,
		Timeout: cfg.AlertNotifyTimeout,
		Logger:  log,
	})

	relay := worker.NewRelay(worker.RelayConfig{
		Timeout:        cfg.AlertNotifyTimeout,
		MaxAge:         cfg.RelayMaxAge,
		MaxOutstanding: cfg.RelayMaxOutstanding,
	}, webhook, log)

	subscription, err := worker.NewSubscription(ctx, worker.SubscriptionConfig{
		ProjectID: cfg.PubSubProjectID,
		Name:      cfg.PubSubAlertSubscription,
		Relay:     relay,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Str("subscription", cfg.PubSubAlertSubscription).Msg("failed to open alert subscription")
	}
	defer subscription.Close()

	// Health endpoint for the container platform.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		stats := relay.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   Version,
			"received":  stats.Received,
			"delivered": stats.Delivered,
			"failed":    stats.Failed,
			"dropped":   stats.Dropped,
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if err := subscription.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("alert relay stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
