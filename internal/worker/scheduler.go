package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportdesk/supportdesk/internal/backup"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Maintainer is the backup work a maintenance run performs.
type Maintainer interface {
	CreateBackup(ctx context.Context) (*backup.Info, error)
	CleanupOldBackups(keep int) (*backup.CleanupResult, error)
	ApplyDataRetention(ctx context.Context, period time.Duration) (*backup.RetentionResult, error)
}

// Ticker delivers maintenance ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the TickerFactory backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// SchedulerConfig holds configuration for creating a Scheduler.
type SchedulerConfig struct {
	Config     MaintenanceConfig
	Maintainer Maintainer
	Logger     zerolog.Logger

	// NewTicker defaults to NewTimeTicker.
	NewTicker TickerFactory
}

// Scheduler runs backup, backup cleanup and data retention on a fixed
// interval. It is either stopped or running.
type Scheduler struct {
	config     MaintenanceConfig
	maintainer Maintainer
	logger     zerolog.Logger
	newTicker  TickerFactory
	tracer     trace.Tracer

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	// runMu serializes maintenance runs from ticks and RunOnce.
	runMu   sync.Mutex
	metrics *RunMetrics
}

// RunMetrics tracks maintenance run statistics.
type RunMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	LastError       string
}

// RunResult describes one maintenance run. A run stops at the first failing
// step; later steps are left for the next run.
type RunResult struct {
	StartTime time.Time
	Duration  time.Duration

	Backup    *backup.Info
	Cleanup   *backup.CleanupResult
	Retention *backup.RetentionResult

	// Step names the failing step when Err is set.
	Step string
	Err  error
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	newTicker := cfg.NewTicker
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	return &Scheduler{
		config:     cfg.Config.withDefaults(),
		maintainer: cfg.Maintainer,
		logger:     cfg.Logger,
		newTicker:  newTicker,
		tracer:     otel.Tracer("supportdesk/worker"),
		state:      StateStopped,
		metrics:    &RunMetrics{},
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start arms the repeating timer. Starting a running scheduler logs a
// warning and does nothing else. Cancelling ctx returns the scheduler to
// stopped, after which Start arms a new timer.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.logger.Warn().Msg("maintenance scheduler already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	ticker := s.newTicker(s.config.Interval)
	done := make(chan struct{})

	s.state = StateRunning
	s.cancel = cancel
	s.done = done

	go s.loop(runCtx, ticker, done)

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Int("keep_backups", s.config.KeepBackups).
		Dur("retention_period", s.config.RetentionPeriod).
		Msg("maintenance scheduler started")
}

// Stop clears the timer and waits for an in-flight run to finish. Stopping a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.state = StateStopped
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info().Msg("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.detach(done)
			return
		case <-ticker.C():
			// Failures are logged by RunOnce; the next tick still fires.
			_ = s.RunOnce(ctx)
		}
	}
}

// detach moves the scheduler to stopped when its loop exits because the
// context passed to Start was cancelled. After Stop, or once a newer loop has
// been started, done no longer matches and nothing changes.
func (s *Scheduler) detach(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.state = StateStopped
	s.cancel = nil
	s.done = nil
	s.logger.Info().Msg("maintenance scheduler stopped: context cancelled")
}

// RunOnce performs one maintenance run: create a backup, prune old backups,
// then apply data retention.
func (s *Scheduler) RunOnce(ctx context.Context) *RunResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "maintenance.run")
	defer span.End()

	result := &RunResult{StartTime: time.Now()}
	s.run(ctx, result)
	result.Duration = time.Since(result.StartTime)

	s.updateMetrics(result)

	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Step)
		s.logger.Error().
			Err(result.Err).
			Str("step", result.Step).
			Dur("duration", result.Duration).
			Msg("maintenance run failed")
		return result
	}

	event := s.logger.Info().
		Str("backup_file", result.Backup.Filename).
		Int("backups_deleted", len(result.Cleanup.Deleted)).
		Dur("duration", result.Duration)
	if result.Retention != nil {
		event = event.Int("records_removed", result.Retention.Removed)
		span.SetAttributes(attribute.Int("maintenance.records_removed", result.Retention.Removed))
	}
	event.Msg("maintenance run completed")
	return result
}

func (s *Scheduler) run(ctx context.Context, result *RunResult) {
	info, err := s.maintainer.CreateBackup(ctx)
	if err != nil {
		result.Step, result.Err = "backup", err
		return
	}
	result.Backup = info

	cleanup, err := s.maintainer.CleanupOldBackups(s.config.KeepBackups)
	if err != nil {
		result.Step, result.Err = "cleanup", err
		return
	}
	result.Cleanup = cleanup

	if s.config.RetentionPeriod <= 0 {
		return
	}
	retention, err := s.maintainer.ApplyDataRetention(ctx, s.config.RetentionPeriod)
	if err != nil {
		result.Step, result.Err = "retention", err
		return
	}
	result.Retention = retention
}

func (s *Scheduler) updateMetrics(result *RunResult) {
	s.metrics.mu.Lock()
	defer s.metrics.mu.Unlock()

	s.metrics.TotalRuns++
	if result.Err != nil {
		s.metrics.FailedRuns++
		s.metrics.LastError = fmt.Sprintf("%s: %v", result.Step, result.Err)
	} else {
		s.metrics.SuccessfulRuns++
		s.metrics.LastError = ""
	}
	s.metrics.LastRunAt = result.StartTime.Add(result.Duration)
	s.metrics.LastRunDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (s *Scheduler) GetMetrics() RunMetrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return RunMetrics{
		TotalRuns:       s.metrics.TotalRuns,
		SuccessfulRuns:  s.metrics.SuccessfulRuns,
		FailedRuns:      s.metrics.FailedRuns,
		LastRunAt:       s.metrics.LastRunAt,
		LastRunDuration: s.metrics.LastRunDuration,
		LastError:       s.metrics.LastError,
	}
}

// MetricsSnapshot returns the scheduler state and metrics as a map.
func (s *Scheduler) MetricsSnapshot() map[string]interface{} {
	m := s.GetMetrics()
	snapshot := map[string]interface{}{
		"state":             string(s.State()),
		"interval":          s.config.Interval.String(),
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"failed_runs":       m.FailedRuns,
		"last_run_duration": m.LastRunDuration.String(),
	}
	if !m.LastRunAt.IsZero() {
		snapshot["last_run_at"] = m.LastRunAt
	}
	if m.LastError != "" {
		snapshot["last_error"] = m.LastError
	}
	return snapshot
}
