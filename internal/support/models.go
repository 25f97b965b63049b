// Package support provides the support request model and the intake service,
// the only path that creates new support requests.
package support

import (
	"time"
)

// Urgency represents how quickly a support request needs attention.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyUrgent Urgency = "urgent"
)

// Valid reports whether u is a known urgency level.
func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent
}

// Request is a submitted support request. Requests are immutable once created.
type Request struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	Urgency   Urgency   `json:"urgency"`
	CreatedAt time.Time `json:"createdAt"`
}

// Submission is the raw intake payload before validation.
type Submission struct {
	Name    string `json:"name" validate:"required,min=2"`
	Email   string `json:"email" validate:"required,email"`
	Topic   string `json:"topic" validate:"required,min=3"`
	Message string `json:"message" validate:"required,min=10"`
	Urgency string `json:"urgency" validate:"omitempty,oneof=normal urgent"`
}

// ListOptions contains options for listing support requests.
type ListOptions struct {
	// Urgency restricts the listing to one urgency level. Empty lists all.
	Urgency Urgency
	Limit   int
	Offset  int
}

// ListResult contains a page of support requests, newest first.
type ListResult struct {
	Items []Request
	Total int
}
