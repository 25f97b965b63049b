package support

import "context"

// Repository defines the persistence the intake service needs.
type Repository interface {
	// ReadAll returns every stored request in arrival order.
	ReadAll(ctx context.Context) ([]Request, error)

	// Append adds a request to the end of the queue.
	Append(ctx context.Context, r Request) error
}
