// Package main provides the entrypoint for the support desk maintenance
// worker. It runs the backup, cleanup and retention scheduler and exposes a
// health endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/app"
	"github.com/supportdesk/supportdesk/internal/config"
	"github.com/supportdesk/supportdesk/internal/telemetry"
	"github.com/supportdesk/supportdesk/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "supportdesk-worker"

	if err := config.LoadDotEnv(); err != nil {
		fatalLog := zerolog.New(os.Stderr)
		fatalLog.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg := config.FromEnv()

	log := app.NewLogger(serviceName, Version, cfg.LogLevel)
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting support desk worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	components, err := app.Build(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize support desk")
		return
	}

	scheduler := components.Scheduler
	scheduler.Start(ctx)

	// Worker also exposes a health endpoint for the platform
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      healthRouter(log, scheduler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	scheduler.Stop()
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// healthRouter serves /health: 200 while the scheduler runs, 503 otherwise.
func healthRouter(log zerolog.Logger, scheduler *worker.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := models.Health{
			Status:  models.HealthStatusOK,
			Time:    models.Timestamp(time.Now()),
			Details: scheduler.MetricsSnapshot(),
		}
		status := http.StatusOK
		if scheduler.State() != worker.StateRunning {
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
		health.Details["version"] = Version
		response.JSON(w, r, status, health)
	})
	return r
}
