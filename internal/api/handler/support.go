// Package handler provides HTTP handlers for the support desk API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/support"
)

// maxSubmissionBytes bounds the intake request body.
const maxSubmissionBytes = 64 << 10

// SupportHandler handles public support request intake.
type SupportHandler struct {
	service *support.Service
	metrics *middleware.IntakeMetrics
	logger  zerolog.Logger
}

// NewSupportHandler creates a new SupportHandler. metrics may be nil.
func NewSupportHandler(service *support.Service, metrics *middleware.IntakeMetrics, logger zerolog.Logger) *SupportHandler {
	return &SupportHandler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Submit handles POST /v1/support - submit a new support request.
func (h *SupportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var input support.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&input); err != nil {
		h.metrics.RecordSubmission(r.Context(), middleware.OutcomeInvalid, time.Since(start))
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	created, err := h.service.Submit(r.Context(), input)
	if err != nil {
		var verr *support.ValidationError
		switch {
		case errors.As(err, &verr):
			h.metrics.RecordSubmission(r.Context(), middleware.OutcomeInvalid, time.Since(start))
			response.BadRequest(w, r, "validation error", fieldErrors(verr))
		case errors.Is(err, support.ErrStoreUnavailable):
			h.metrics.RecordSubmission(r.Context(), middleware.OutcomeUnavailable, time.Since(start))
			response.ServiceUnavailable(w, r, "support requests cannot be accepted right now, please try again later")
		default:
			h.metrics.RecordSubmission(r.Context(), middleware.OutcomeFailed, time.Since(start))
			h.logger.Error().Err(err).
				Str("request_id", middleware.GetRequestID(r.Context())).
				Msg("support request submission failed")
			response.InternalError(w, r, "failed to submit support request")
		}
		return
	}

	h.metrics.RecordSubmission(r.Context(), middleware.OutcomeAccepted, time.Since(start))
	response.Created(w, r, "", created)
}

// fieldErrors converts a validation error into problem field errors, sorted by field.
func fieldErrors(verr *support.ValidationError) []models.FieldError {
	names := verr.FieldNames()
	out := make([]models.FieldError, len(names))
	for i, name := range names {
		out[i] = models.FieldError{
			Field:   name,
			Message: verr.Fields[name],
		}
	}
	return out
}
