package support

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/resilience"
)

// ServiceConfig holds configuration for the intake service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Guard protects repository writes. If nil, a guard with the default
	// circuit breaker configuration is created.
	Guard *resilience.Guard

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID returns a fresh request identifier. Defaults to a random UUID.
	NewID func() string
}

// Service validates submissions and appends them to the queue.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	guard  *resilience.Guard
	now    func() time.Time
	newID  func() string

	mu          sync.Mutex
	lastCreated time.Time
}

// NewService creates a new intake service.
func NewService(cfg ServiceConfig) *Service {
	guard := cfg.Guard
	if guard == nil {
		guard = resilience.NewGuard(resilience.DefaultCircuitBreakerConfig("support-queue"))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		guard:  guard,
		now:    now,
		newID:  newID,
	}
}

// Guard returns the circuit breaker guarding queue writes.
func (s *Service) Guard() *resilience.Guard {
	return s.guard
}

// Submit validates the submission and, if valid, appends a new request to the
// queue. Invalid submissions return a *ValidationError and store nothing.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Request, error) {
	valid, err := Validate(sub)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req := Request{
		ID:        s.newID(),
		Name:      valid.Name,
		Email:     valid.Email,
		Topic:     valid.Topic,
		Message:   valid.Message,
		Urgency:   Urgency(valid.Urgency),
		CreatedAt: s.createdAt(),
	}

	err = s.guard.Execute(func() error {
		return s.repo.Append(ctx, req)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, ErrStoreUnavailable
		}
		return nil, fmt.Errorf("appending support request: %w", err)
	}

	s.lastCreated = req.CreatedAt
	s.logger.Info().
		Str("support_request_id", req.ID).
		Str("urgency", string(req.Urgency)).
		Msg("support request submitted")

	return &req, nil
}

// createdAt returns the creation timestamp for a new request, never earlier
// than the previous one issued by this service.
func (s *Service) createdAt() time.Time {
	ts := s.now().UTC().Truncate(time.Millisecond)
	if ts.Before(s.lastCreated) {
		return s.lastCreated
	}
	return ts
}

// List returns stored requests newest first, filtered and paginated.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	all, err := s.repo.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]Request, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if opts.Urgency != "" && all[i].Urgency != opts.Urgency {
			continue
		}
		filtered = append(filtered, all[i])
	}
	// Arrival order already approximates creation order; the stable sort only
	// fixes up records restored from older backups.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	result := &ListResult{Total: len(filtered)}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		result.Items = []Request{}
		return result, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	result.Items = filtered[offset:end]
	return result, nil
}
