// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/backup"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/worker"
)

// DevSigningKey signs admin tokens when ADMIN_TOKEN_SIGNING_KEY is unset.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Config holds the settings shared by the API server, the worker and the CLI.
type Config struct {
	Port        string
	Environment string
	LogLevel    zerolog.Level

	QueueFile string
	QueueLock bool
	BackupDir string
	ExportDir string

	Maintenance      worker.MaintenanceConfig
	SchedulerEnabled bool

	AdminUsername   string
	AdminPassword   string
	TokenSigningKey string

	SubmitRateLimit  int
	SubmitRateWindow time.Duration
	RequireTLS       bool

	TelemetryEnabled     bool
	OTLPEndpoint         string
	TelemetrySampleRatio float64
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored and existing variables are never
// overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// FromEnv reads the configuration from environment variables, falling back
// to defaults for unset or unparsable values.
func FromEnv() Config {
	maintenance := worker.DefaultMaintenanceConfig()
	maintenance.Interval = getDurationOrDefault("BACKUP_INTERVAL", maintenance.Interval)
	maintenance.KeepBackups = getIntOrDefault("BACKUP_KEEP", maintenance.KeepBackups)
	maintenance.RetentionPeriod = getRetentionOrDefault("RETENTION_DAYS", 365)

	level, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		LogLevel:    level,

		QueueFile: getEnvOrDefault("QUEUE_FILE", queue.DefaultPath),
		QueueLock: getBoolOrDefault("QUEUE_FILE_LOCK", false),
		BackupDir: getEnvOrDefault("BACKUP_DIR", backup.DefaultDir),
		ExportDir: getEnvOrDefault("EXPORT_DIR", export.DefaultDir),

		Maintenance:      maintenance,
		SchedulerEnabled: getBoolOrDefault("SCHEDULER_ENABLED", false),

		AdminUsername:   os.Getenv("ADMIN_USERNAME"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		TokenSigningKey: getEnvOrDefault("ADMIN_TOKEN_SIGNING_KEY", DevSigningKey),

		SubmitRateLimit:  getIntOrDefault("SUBMIT_RATE_LIMIT", 5),
		SubmitRateWindow: getDurationOrDefault("SUBMIT_RATE_WINDOW", 15*time.Minute),
		RequireTLS:       getBoolOrDefault("REQUIRE_TLS", false),

		TelemetryEnabled:     getBoolOrDefault("OTEL_ENABLED", false),
		OTLPEndpoint:         getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TelemetrySampleRatio: getFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Warnings lists insecure settings worth logging at startup.
func (c Config) Warnings() []string {
	var warnings []string
	if c.TokenSigningKey == DevSigningKey {
		warnings = append(warnings, "using default admin token signing key - not secure for production")
	}
	if c.AdminUsername == "" || c.AdminPassword == "" {
		warnings = append(warnings, "admin credentials not configured - admin endpoints will reject every request")
	}
	return warnings
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

// getRetentionOrDefault reads a day count. Values outside
// 0..backup.MaxRetentionDays fall back to defaultDays.
func getRetentionOrDefault(key string, defaultDays int) time.Duration {
	period, err := backup.RetentionPeriod(getIntOrDefault(key, defaultDays))
	if err != nil {
		period, _ = backup.RetentionPeriod(defaultDays)
	}
	return period
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
