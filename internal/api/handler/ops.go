package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/resilience"
	"github.com/supportdesk/supportdesk/internal/worker"
)

// QueueInspector reads the queue file for readiness and status checks.
type QueueInspector interface {
	Locate() string
	Snapshot(ctx context.Context) (queue.Snapshot, error)
}

// SchedulerStatus reports the maintenance scheduler state.
type SchedulerStatus interface {
	State() worker.State
	MetricsSnapshot() map[string]interface{}
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	queue     QueueInspector
	guard     *resilience.Guard
	scheduler SchedulerStatus
}

// OpsHandlerConfig holds the dependencies of an OpsHandler. Guard and
// Scheduler are optional.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Queue     QueueInspector
	Guard     *resilience.Guard
	Scheduler SchedulerStatus
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		queue:     cfg.Queue,
		guard:     cfg.Guard,
		scheduler: cfg.Scheduler,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service is
// ready when the queue file can be read and parsed.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	snap, err := h.queue.Snapshot(r.Context())
	if err != nil {
		detail := "support queue is unreadable"
		if queue.IsCorrupt(err) {
			detail = "support queue file is corrupt"
		}
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(time.Now()),
			Details: map[string]interface{}{"queue": detail},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"records":   len(snap.Records),
			"sizeBytes": snap.Size,
		},
	})
}

// SystemStatus handles GET /v1/ops/status - queue, storage breaker and
// scheduler status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(time.Now()),
		Storage: storageStatus(h.guard),
	}

	queueStatus := models.SubsystemStatus{Name: "queue", Status: models.HealthStatusOK}
	if snap, err := h.queue.Snapshot(r.Context()); err != nil {
		queueStatus.Status = models.HealthStatusFail
		queueStatus.Detail = strPtr(err.Error())
	} else {
		queueStatus.Detail = strPtr(fmt.Sprintf("%s (%d records)", h.queue.Locate(), len(snap.Records)))
	}
	status.Subsystems = append(status.Subsystems, queueStatus)

	if h.scheduler != nil {
		schedulerStatus := models.SubsystemStatus{Name: "scheduler", Status: models.HealthStatusOK}
		if h.scheduler.State() != worker.StateRunning {
			schedulerStatus.Status = models.HealthStatusDegraded
			schedulerStatus.Detail = strPtr("scheduler is stopped")
		}
		status.Subsystems = append(status.Subsystems, schedulerStatus)
		status.Scheduler = h.scheduler.MetricsSnapshot()
	}

	status.Status = worst(status.Storage.Status)
	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

// storageStatus reports the queue write path as seen by its circuit breaker.
func storageStatus(guard *resilience.Guard) models.StorageStatus {
	if guard == nil {
		return models.StorageStatus{Status: models.HealthStatusOK, CircuitState: "unknown"}
	}

	health := guard.Health()
	out := models.StorageStatus{
		Status:       models.HealthStatusOK,
		CircuitState: health.CircuitState.String(),
	}
	switch {
	case health.IsUnhealthy():
		out.Status = models.HealthStatusFail
	case health.IsDegraded():
		out.Status = models.HealthStatusDegraded
	}
	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		out.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		out.LastFailureAt = &ts
	}
	if health.LastError != "" {
		out.Message = strPtr(health.LastError)
	}
	return out
}

// worst returns the most severe of the given statuses.
func worst(statuses ...models.HealthStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, s := range statuses {
		switch {
		case s == models.HealthStatusFail:
			return models.HealthStatusFail
		case s == models.HealthStatusDegraded:
			result = models.HealthStatusDegraded
		}
	}
	return result
}

func strPtr(s string) *string {
	return &s
}
