package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/backup"
	"github.com/supportdesk/supportdesk/internal/queue"
)

// DefaultRetentionDays is the retention period applied when no days are given.
const DefaultRetentionDays = 365

// BackupHandler handles backup, restore and retention endpoints.
type BackupHandler struct {
	backups *backup.Manager
	logger  zerolog.Logger
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(backups *backup.Manager, logger zerolog.Logger) *BackupHandler {
	return &BackupHandler{
		backups: backups,
		logger:  logger,
	}
}

// ListBackups handles GET /v1/admin/backups - list backups, newest first.
func (h *BackupHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	infos, err := h.backups.ListBackups()
	if err != nil {
		internalError(w, r, h.logger, err, "failed to list backups")
		return
	}
	response.JSON(w, r, http.StatusOK, models.BackupList{Items: infos})
}

// CreateBackup handles POST /v1/admin/backups - snapshot the queue now.
func (h *BackupHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	info, err := h.backups.CreateBackup(r.Context())
	if err != nil {
		h.writeError(w, r, err, "failed to create backup")
		return
	}

	h.audit(r, "backup created", info.Filename)
	response.Created(w, r, "", info)
}

// RestoreBackup handles POST /v1/admin/backups/{filename}/restore - replace the
// queue with the contents of a backup.
func (h *BackupHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		response.BadRequest(w, r, "filename is required", nil)
		return
	}

	result, err := h.backups.RestoreFromBackup(r.Context(), filename)
	if err != nil {
		h.writeError(w, r, err, "failed to restore backup")
		return
	}

	h.audit(r, "backup restored", filename)
	response.JSON(w, r, http.StatusOK, result)
}

// CleanupBackups handles POST /v1/admin/backups/cleanup?keep=N - delete all but
// the newest N backups.
func (h *BackupHandler) CleanupBackups(w http.ResponseWriter, r *http.Request) {
	keep, ok := boundedQueryInt(w, r, "keep", backup.DefaultKeep, 0)
	if !ok {
		return
	}

	result, err := h.backups.CleanupOldBackups(keep)
	if err != nil {
		internalError(w, r, h.logger, err, "failed to clean up backups")
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// ApplyRetention handles POST /v1/admin/retention?days=N - drop requests older
// than N days, after taking a backup.
func (h *BackupHandler) ApplyRetention(w http.ResponseWriter, r *http.Request) {
	days, ok := boundedQueryInt(w, r, "days", DefaultRetentionDays, backup.MaxRetentionDays)
	if !ok {
		return
	}
	period, err := backup.RetentionPeriod(days)
	if err != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: "days", Message: err.Error()},
		})
		return
	}

	result, err := h.backups.ApplyDataRetention(r.Context(), period)
	if err != nil {
		h.writeError(w, r, err, "failed to apply data retention")
		return
	}

	h.audit(r, "data retention applied", strconv.Itoa(days)+"d")
	response.JSON(w, r, http.StatusOK, result)
}

// writeError maps backup and queue errors to problem responses.
func (h *BackupHandler) writeError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	var invalid *backup.InvalidBackupFormatError
	switch {
	case errors.Is(err, backup.ErrBackupNotFound):
		response.NotFound(w, r, "backup not found")
	case errors.As(err, &invalid):
		response.Unprocessable(w, r, invalid.Error())
	case errors.Is(err, backup.ErrInvalidRetentionPeriod):
		response.BadRequest(w, r, err.Error(), nil)
	case queue.IsCorrupt(err):
		internalError(w, r, h.logger, err, "support queue file is corrupt")
	default:
		internalError(w, r, h.logger, err, detail)
	}
}

func (h *BackupHandler) audit(r *http.Request, msg, target string) {
	h.logger.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("admin", middleware.GetAdmin(r.Context())).
		Str("target", target).
		Msg(msg)
}

// boundedQueryInt reads an optional integer query parameter that must be at
// least 1 and, when limit is positive, at most limit. On a bad value it writes a
// 400 response and returns false.
func boundedQueryInt(w http.ResponseWriter, r *http.Request, name string, def, limit int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	switch {
	case err != nil || n < 1:
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: name, Message: name + " must be a positive integer"},
		})
		return 0, false
	case limit > 0 && n > limit:
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: name, Message: name + " must be at most " + strconv.Itoa(limit)},
		})
		return 0, false
	}
	return n, true
}
