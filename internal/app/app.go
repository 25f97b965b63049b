// Package app wires the support desk components from a Config. The API
// server, the maintenance worker and supportctl all build on it.
package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/auth"
	"github.com/supportdesk/supportdesk/internal/backup"
	"github.com/supportdesk/supportdesk/internal/config"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/support"
	"github.com/supportdesk/supportdesk/internal/worker"
)

const (
	tokenIssuer   = "supportdesk"
	tokenAudience = "supportdesk-admin"
)

// Components holds the wired support desk services.
type Components struct {
	Store     *queue.Store
	Service   *support.Service
	Backups   *backup.Manager
	Exports   *export.Engine
	Scheduler *worker.Scheduler

	Credentials auth.Credentials
	Tokens      *auth.JWTService
}

// Build creates every component from cfg and makes sure the queue file
// exists. The scheduler is created stopped.
func Build(cfg config.Config, logger zerolog.Logger) (*Components, error) {
	store := queue.NewStore(queue.Config{
		Path:   cfg.QueueFile,
		Lock:   cfg.QueueLock,
		Logger: logger.With().Str("component", "queue").Logger(),
	})
	if err := store.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare support queue: %w", err)
	}

	backups := backup.NewManager(backup.Config{
		Dir:    cfg.BackupDir,
		Store:  store,
		Logger: logger.With().Str("component", "backup").Logger(),
	})

	return &Components{
		Store: store,
		Service: support.NewService(support.ServiceConfig{
			Repository: store,
			Logger:     logger.With().Str("component", "intake").Logger(),
		}),
		Backups: backups,
		Exports: export.NewEngine(export.Config{
			Dir:    cfg.ExportDir,
			Reader: store,
			Logger: logger.With().Str("component", "export").Logger(),
		}),
		Scheduler: worker.NewScheduler(worker.SchedulerConfig{
			Config:     cfg.Maintenance,
			Maintainer: backups,
			Logger:     logger.With().Str("component", "scheduler").Logger(),
		}),
		Credentials: auth.Credentials{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
		},
		Tokens: auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.TokenSigningKey,
			Issuer:     tokenIssuer,
			Audience:   tokenAudience,
		}),
	}, nil
}

// NewLogger returns the JSON process logger used by the servers.
func NewLogger(service, version string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// LogWarnings logs every insecure setting in cfg.
func LogWarnings(logger zerolog.Logger, cfg config.Config) {
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}
}
