// Package worker provides background maintenance for the support queue.
package worker

import (
	"time"

	"github.com/supportdesk/supportdesk/internal/backup"
)

// MaintenanceConfig holds configuration for the maintenance scheduler.
type MaintenanceConfig struct {
	// Interval is the time between maintenance runs.
	// Default: 24 hours
	Interval time.Duration

	// KeepBackups is how many backups survive the cleanup step.
	// Default: 30
	KeepBackups int

	// RetentionPeriod is how long requests are kept. Zero or negative
	// skips the retention step.
	// Default: 365 days
	RetentionPeriod time.Duration

	// Timeout bounds a single maintenance run.
	// Default: 5 minutes
	Timeout time.Duration
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Interval:        24 * time.Hour,
		KeepBackups:     backup.DefaultKeep,
		RetentionPeriod: 365 * 24 * time.Hour,
		Timeout:         5 * time.Minute,
	}
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	def := DefaultMaintenanceConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.KeepBackups <= 0 {
		c.KeepBackups = def.KeepBackups
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
