// Package main provides the entrypoint for the support desk API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api"
	"github.com/supportdesk/supportdesk/internal/api/handler"
	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/app"
	"github.com/supportdesk/supportdesk/internal/config"
	"github.com/supportdesk/supportdesk/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "supportdesk-api"

	if err := config.LoadDotEnv(); err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg := config.FromEnv()

	// Setup structured logging
	log := app.NewLogger(serviceName, Version, cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting support desk API")
	app.LogWarnings(log, cfg)

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
		SampleRatio:    cfg.TelemetrySampleRatio,
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

	if cfg.TelemetryEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	intakeMetrics, err := middleware.NewIntakeMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize intake metrics")
		os.Exit(1)
	}

	components, err := app.Build(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize support desk")
		os.Exit(1)
	}
	log.Info().
		Str("queue_file", components.Store.Locate()).
		Str("backup_dir", components.Backups.Dir()).
		Str("export_dir", components.Exports.Dir()).
		Msg("support queue ready")

	// The status endpoint reports the scheduler only when this process runs it.
	var scheduler handler.SchedulerStatus
	if cfg.SchedulerEnabled {
		components.Scheduler.Start(ctx)
		defer components.Scheduler.Stop()
		scheduler = components.Scheduler
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       metrics,
		IntakeMetrics: intakeMetrics,
		Service:       components.Service,
		Queue:         components.Store,
		Backups:       components.Backups,
		Exports:       components.Exports,
		Scheduler:     scheduler,
		Credentials:   components.Credentials,
		Tokens:        components.Tokens,
		SubmitRateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.SubmitRateLimit,
			WindowLength: cfg.SubmitRateWindow,
		},
		RequireTLS: cfg.RequireTLS,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
