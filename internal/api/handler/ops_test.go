package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/supportdesk/internal/api/handler"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/resilience"
	"github.com/supportdesk/supportdesk/internal/support"
	"github.com/supportdesk/supportdesk/internal/worker"
)

type fakeQueue struct {
	snap queue.Snapshot
	err  error
}

func (f *fakeQueue) Locate() string { return "/srv/data/support-queue.json" }

func (f *fakeQueue) Snapshot(_ context.Context) (queue.Snapshot, error) {
	return f.snap, f.err
}

type fakeScheduler struct {
	state worker.State
}

func (f *fakeScheduler) State() worker.State { return f.state }

func (f *fakeScheduler) MetricsSnapshot() map[string]interface{} {
	return map[string]interface{}{"state": string(f.state), "total_runs": 3}
}

func newOpsHandler(q handler.QueueInspector, guard *resilience.Guard, scheduler handler.SchedulerStatus) *handler.OpsHandler {
	return handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   "1.0.0",
		BuildTime: "2024-01-01T00:00:00Z",
		Queue:     q,
		Guard:     guard,
		Scheduler: scheduler,
	})
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) models.SystemStatus {
	t.Helper()
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	return status
}

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := newOpsHandler(&fakeQueue{}, nil, nil)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "1.0.0", health.Details["version"])
	assert.Equal(t, "2024-01-01T00:00:00Z", health.Details["buildTime"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name           string
		queue          *fakeQueue
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "readable",
			queue:          &fakeQueue{snap: queue.Snapshot{Records: []support.Request{{ID: "a"}}, Size: 120}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "corrupt",
			queue:          &fakeQueue{err: &queue.CorruptQueueError{Path: "/srv/data/support-queue.json", Err: errors.New("bad")}},
			expectedStatus: http.StatusServiceUnavailable,
			expectedDetail: "support queue file is corrupt",
		},
		{
			name:           "unreadable",
			queue:          &fakeQueue{err: errors.New("permission denied")},
			expectedStatus: http.StatusServiceUnavailable,
			expectedDetail: "support queue is unreadable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newOpsHandler(tt.queue, nil, nil)

			w := httptest.NewRecorder()
			h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "/srv/data")
			if tt.expectedDetail != "" {
				var health models.Health
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
				assert.Equal(t, models.HealthStatusFail, health.Status)
				assert.Equal(t, tt.expectedDetail, health.Details["queue"])
			}
		})
	}
}

func TestOpsHandler_SystemStatus_AllHealthy(t *testing.T) {
	guard := resilience.NewGuard(resilience.DefaultCircuitBreakerConfig("support-queue"))
	require.NoError(t, guard.Execute(func() error { return nil }))
	h := newOpsHandler(
		&fakeQueue{snap: queue.Snapshot{Records: []support.Request{{ID: "a"}, {ID: "b"}}}},
		guard,
		&fakeScheduler{state: worker.StateRunning},
	)

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	status := decodeStatus(t, w)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, "closed", status.Storage.CircuitState)
	assert.NotNil(t, status.Storage.LastSuccessAt)
	require.Len(t, status.Subsystems, 2)
	assert.Equal(t, "/srv/data/support-queue.json (2 records)", *status.Subsystems[0].Detail)
	assert.Equal(t, "scheduler", status.Subsystems[1].Name)
	assert.Equal(t, "running", status.Scheduler["state"])
}

func TestOpsHandler_SystemStatus_SchedulerStopped(t *testing.T) {
	h := newOpsHandler(&fakeQueue{}, nil, &fakeScheduler{state: worker.StateStopped})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	status := decodeStatus(t, w)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.Equal(t, "unknown", status.Storage.CircuitState)
	assert.Equal(t, models.HealthStatusDegraded, status.Subsystems[1].Status)
}

func TestOpsHandler_SystemStatus_CircuitOpen(t *testing.T) {
	cfg := resilience.DefaultCircuitBreakerConfig("support-queue")
	cfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 1
	}
	guard := resilience.NewGuard(cfg)
	_ = guard.Execute(func() error { return errors.New("disk full") })

	h := newOpsHandler(&fakeQueue{err: errors.New("disk full")}, guard, nil)

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	status := decodeStatus(t, w)
	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Equal(t, models.HealthStatusFail, status.Storage.Status)
	assert.Equal(t, "open", status.Storage.CircuitState)
	require.NotNil(t, status.Storage.Message)
	assert.Equal(t, "disk full", *status.Storage.Message)
	assert.Equal(t, models.HealthStatusFail, status.Subsystems[0].Status)
	assert.Nil(t, status.Scheduler)
}
