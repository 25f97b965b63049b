package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Health represents the health status of a guarded dependency.
type Health struct {
	// Name is the guard identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the timestamp of the last successful operation.
	LastSuccessAt *time.Time

	// LastFailureAt is the timestamp of the last failed operation.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the dependency is considered healthy.
func (h *Health) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the dependency is in a degraded state (half-open).
func (h *Health) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true if the dependency is unhealthy (circuit open).
func (h *Health) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Guard runs operations through a circuit breaker and remembers the outcome
// of the most recent ones.
type Guard struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]

	mu            sync.RWMutex
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewGuard creates a guard with the given circuit breaker configuration.
func NewGuard(cfg CircuitBreakerConfig) *Guard {
	return &Guard{
		name: cfg.Name,
		cb:   NewCircuitBreaker[struct{}](cfg),
	}
}

// Execute runs op unless the circuit is open, in which case it returns
// ErrCircuitOpen without calling op. Errors from op are returned unchanged.
func (g *Guard) Execute(op func() error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}

	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.lastFailureAt = &now
		g.lastError = err.Error()
		return err
	}
	g.lastSuccessAt = &now
	return nil
}

// Health returns the current health of the guarded dependency.
func (g *Guard) Health() *Health {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return &Health{
		Name:          g.name,
		CircuitState:  g.cb.State(),
		Counts:        g.cb.Counts(),
		LastSuccessAt: g.lastSuccessAt,
		LastFailureAt: g.lastFailureAt,
		LastError:     g.lastError,
	}
}
