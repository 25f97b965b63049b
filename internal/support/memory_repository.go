package support

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production uses the file-backed queue store.
type InMemoryRepository struct {
	mu       sync.RWMutex
	requests []Request

	// AppendErr, when set, is returned by Append instead of storing the request.
	AppendErr error
}

// NewInMemoryRepository creates a new in-memory support request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// ReadAll returns a copy of every stored request.
func (r *InMemoryRepository) ReadAll(_ context.Context) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out, nil
}

// Append stores a request.
func (r *InMemoryRepository) Append(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.requests = append(r.requests, req)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
