package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, so a requester can quote it to support staff.
	TraceID string `json:"traceId"`

	// Errors lists per-field validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Kind names an entry in the problem catalog. It is also the last segment of
// the problem type URI.
type Kind string

const (
	KindValidation       Kind = "validation-error"
	KindUnauthorized     Kind = "admin-unauthorized"
	KindNotFound         Kind = "not-found"
	KindInvalidBackup    Kind = "invalid-backup"
	KindRateLimited      Kind = "rate-limited"
	KindTLSRequired      Kind = "tls-required"
	KindUnsupportedMedia Kind = "unsupported-media-type"
	KindInternal         Kind = "internal-error"
	KindQueueUnavailable Kind = "queue-unavailable"
)

const problemTypeBase = "https://supportdesk.dev/problems/"

var catalog = map[Kind]struct {
	title  string
	status int
}{
	KindValidation:       {"Validation error", http.StatusBadRequest},
	KindUnauthorized:     {"Admin authentication required", http.StatusUnauthorized},
	KindNotFound:         {"Not found", http.StatusNotFound},
	KindInvalidBackup:    {"Backup cannot be restored", http.StatusUnprocessableEntity},
	KindRateLimited:      {"Too many requests", http.StatusTooManyRequests},
	KindTLSRequired:      {"TLS required", http.StatusForbidden},
	KindUnsupportedMedia: {"Unsupported media type", http.StatusUnsupportedMediaType},
	KindInternal:         {"Internal server error", http.StatusInternalServerError},
	KindQueueUnavailable: {"Support queue unavailable", http.StatusServiceUnavailable},
}

// TypeURI returns the problem type URI for k.
func (k Kind) TypeURI() string {
	return problemTypeBase + string(k)
}

// Status returns the HTTP status served for k, or 500 for an unknown kind.
func (k Kind) Status() int {
	if entry, ok := catalog[k]; ok {
		return entry.status
	}
	return http.StatusInternalServerError
}

// New builds the catalog problem for kind. An unknown kind is served as an
// internal error.
func New(kind Kind, traceID, detail string) *Problem {
	entry, ok := catalog[kind]
	if !ok {
		kind, entry = KindInternal, catalog[KindInternal]
	}
	return &Problem{
		Type:    kind.TypeURI(),
		Title:   entry.title,
		Status:  entry.status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write serves p, echoing its trace ID in X-Request-Id.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest reports invalid input, with optional per-field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := New(KindValidation, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized reports missing or rejected admin credentials.
func NewUnauthorized(traceID, detail string) *Problem {
	return New(KindUnauthorized, traceID, detail)
}

// NewNotFound reports an unknown backup, export or route.
func NewNotFound(traceID, detail string) *Problem {
	return New(KindNotFound, traceID, detail)
}

// NewUnprocessable reports a backup that fails validation on restore.
func NewUnprocessable(traceID, detail string) *Problem {
	return New(KindInvalidBackup, traceID, detail)
}

// NewTooManyRequests reports a rate-limited caller.
func NewTooManyRequests(traceID, detail string) *Problem {
	return New(KindRateLimited, traceID, detail)
}

// NewInternalError reports a failure whose detail must stay generic.
func NewInternalError(traceID, detail string) *Problem {
	return New(KindInternal, traceID, detail)
}

// NewServiceUnavailable reports a support queue that cannot take writes.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return New(KindQueueUnavailable, traceID, detail)
}
