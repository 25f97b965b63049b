// Package response writes the API's JSON, problem and download responses.
package response

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
)

// correlate echoes the request ID so clients can quote it in support tickets.
func correlate(w http.ResponseWriter, r *http.Request) string {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	return requestID
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// JSON writes data as a JSON body with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	correlate(w, r)
	writeJSON(w, status, data)
}

// Created writes a 201 response, setting Location when one is given.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	correlate(w, r)
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, http.StatusCreated, data)
}

// Error writes problem as application/problem+json, stamping the request path
// as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func problem(w http.ResponseWriter, r *http.Request, build func(traceID string) *models.Problem) {
	Error(w, r, build(middleware.GetRequestID(r.Context())))
}

// BadRequest writes a 400 problem with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	problem(w, r, func(id string) *models.Problem { return models.NewBadRequest(id, detail, errors) })
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewUnauthorized(id, detail) })
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewNotFound(id, detail) })
}

// Unprocessable writes a 422 problem.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewUnprocessable(id, detail) })
}

// InternalError writes a 500 problem. detail must not carry filesystem paths.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewInternalError(id, detail) })
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	problem(w, r, func(id string) *models.Problem { return models.NewServiceUnavailable(id, detail) })
}

// Attachment streams body as a file download named filename. A negative size
// omits Content-Length.
func Attachment(w http.ResponseWriter, r *http.Request, filename, contentType string, size int64, body io.Reader) error {
	correlate(w, r)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, err := io.Copy(w, body)
	return err
}
