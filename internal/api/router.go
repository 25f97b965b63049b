// Package api provides the HTTP API for the support desk.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/handler"
	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/auth"
	"github.com/supportdesk/supportdesk/internal/backup"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/support"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version       string
	BuildTime     string
	Logger        zerolog.Logger
	ServiceName   string
	Metrics       *middleware.Metrics
	IntakeMetrics *middleware.IntakeMetrics

	Service *support.Service
	Queue   handler.QueueInspector
	Backups *backup.Manager
	Exports *export.Engine

	// Scheduler is reported by the status endpoint when set. Leave it nil
	// (not a typed nil pointer) when no scheduler runs in this process.
	Scheduler handler.SchedulerStatus

	Credentials auth.Credentials
	Tokens      *auth.JWTService

	// SubmitRateLimit limits intake per client IP. Zero uses middleware.SubmitRateLimit.
	SubmitRateLimit middleware.RateLimitConfig
	RequireTLS      bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "supportdesk-api"
	}

	submitLimit := cfg.SubmitRateLimit
	if submitLimit.RequestLimit <= 0 || submitLimit.WindowLength <= 0 {
		submitLimit = middleware.SubmitRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Queue:     cfg.Queue,
		Guard:     cfg.Service.Guard(),
		Scheduler: cfg.Scheduler,
	})
	supportHandler := handler.NewSupportHandler(cfg.Service, cfg.IntakeMetrics, cfg.Logger)
	adminHandler := handler.NewAdminHandler(handler.AdminHandlerConfig{
		Service:     cfg.Service,
		Exports:     cfg.Exports,
		Credentials: cfg.Credentials,
		Tokens:      cfg.Tokens,
		Logger:      cfg.Logger,
	})
	backupHandler := handler.NewBackupHandler(cfg.Backups, cfg.Logger)
	exportHandler := handler.NewExportHandler(cfg.Exports, cfg.Logger)

	// Create auth middleware
	adminAuth := middleware.AdminAuth(middleware.AdminAuthConfig{
		Credentials: cfg.Credentials,
		Tokens:      cfg.Tokens,
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Support intake (public) - strict per-IP rate limiting
		r.With(
			middleware.RateLimitByIP(submitLimit),
			middleware.RequireJSON,
		).Post("/support", supportHandler.Submit)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(adminAuth).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			// Token exchange takes basic credentials itself
			r.With(middleware.RateLimitByIP(middleware.TokenRateLimit)).Post("/token", adminHandler.IssueToken)

			// Everything else requires an authenticated admin
			r.Group(func(r chi.Router) {
				r.Use(adminAuth)
				r.Use(middleware.RateLimitByAdmin(middleware.AdminRateLimit))

				r.Get("/requests", adminHandler.ListRequests)
				r.Get("/stats", adminHandler.Stats)
				r.Post("/retention", backupHandler.ApplyRetention)

				r.Route("/backups", func(r chi.Router) {
					r.Get("/", backupHandler.ListBackups)
					r.Post("/", backupHandler.CreateBackup)
					r.Post("/cleanup", backupHandler.CleanupBackups)
					r.Post("/{filename}/restore", backupHandler.RestoreBackup)
				})

				r.Route("/exports", func(r chi.Router) {
					r.Get("/", exportHandler.ListExports)
					r.Post("/", exportHandler.CreateExport)
					r.Post("/cleanup", exportHandler.CleanupExports)
					r.Get("/{filename}", exportHandler.DownloadExport)
				})
			})
		})
	})

	return r
}
