package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/support"
)

// ExportHandler handles export endpoints.
type ExportHandler struct {
	exports *export.Engine
	logger  zerolog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exports *export.Engine, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exports: exports,
		logger:  logger,
	}
}

// ListExports handles GET /v1/admin/exports - list export files, newest first.
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.exports.ListExports()
	if err != nil {
		internalError(w, r, h.logger, err, "failed to list exports")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ExportList{Items: infos})
}

// CreateExport handles POST /v1/admin/exports - write a filtered export file.
func (h *ExportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var input models.ExportCreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(w, r, "invalid JSON body", nil)
			return
		}
	}

	opts, errs := exportOptions(input)
	if len(errs) > 0 {
		response.BadRequest(w, r, "validation error", errs)
		return
	}

	result, err := h.exports.ExportRequests(r.Context(), opts)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrInvalidFormat), errors.Is(err, export.ErrInvalidFilter):
			response.BadRequest(w, r, err.Error(), nil)
		case queue.IsCorrupt(err):
			internalError(w, r, h.logger, err, "support queue file is corrupt")
		default:
			internalError(w, r, h.logger, err, "failed to create export")
		}
		return
	}

	h.logger.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("admin", middleware.GetAdmin(r.Context())).
		Str("export_file", result.Filename).
		Msg("export requested")
	response.Created(w, r, "/v1/admin/exports/"+result.Filename, result)
}

// DownloadExport handles GET /v1/admin/exports/{filename} - download an export file.
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	f, info, err := h.exports.Open(filename)
	if err != nil {
		if errors.Is(err, export.ErrExportNotFound) {
			response.NotFound(w, r, "export not found")
			return
		}
		internalError(w, r, h.logger, err, "failed to open export")
		return
	}
	defer f.Close()

	contentType := "application/json"
	if info.Format == export.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	if err := response.Attachment(w, r, info.Filename, contentType, info.Size, f); err != nil {
		h.logger.Warn().Err(err).
			Str("export_file", info.Filename).
			Msg("export download interrupted")
	}
}

// CleanupExports handles POST /v1/admin/exports/cleanup?keep=N - delete all but
// the newest N exports.
func (h *ExportHandler) CleanupExports(w http.ResponseWriter, r *http.Request) {
	keep, ok := boundedQueryInt(w, r, "keep", export.DefaultKeep, 0)
	if !ok {
		return
	}

	result, err := h.exports.CleanupOldExports(keep)
	if err != nil {
		internalError(w, r, h.logger, err, "failed to clean up exports")
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// exportOptions converts the request body into export options, collecting a
// field error for each malformed value.
func exportOptions(input models.ExportCreateRequest) (export.Options, []models.FieldError) {
	opts := export.Options{
		Format:          export.Format(input.Format),
		Urgency:         support.Urgency(input.Urgency),
		IncludeMetadata: input.IncludeMetadata,
	}
	var errs []models.FieldError

	if opts.Format != "" && !opts.Format.Valid() {
		errs = append(errs, models.FieldError{Field: "format", Message: "format must be one of: json, csv"})
	}
	if opts.Urgency != "" && !opts.Urgency.Valid() {
		errs = append(errs, models.FieldError{Field: "urgency", Message: "urgency must be one of: normal, urgent"})
	}
	if input.StartDate != "" {
		t, err := export.ParseDateBound(input.StartDate, false)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "startDate", Message: "startDate must be YYYY-MM-DD or RFC 3339"})
		} else {
			opts.StartDate = &t
		}
	}
	if input.EndDate != "" {
		t, err := export.ParseDateBound(input.EndDate, true)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "endDate", Message: "endDate must be YYYY-MM-DD or RFC 3339"})
		} else {
			opts.EndDate = &t
		}
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.StartDate.After(*opts.EndDate) {
		errs = append(errs, models.FieldError{Field: "endDate", Message: "endDate must not be before startDate"})
	}

	return opts, errs
}
