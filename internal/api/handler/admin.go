package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/api/models"
	"github.com/supportdesk/supportdesk/internal/api/response"
	"github.com/supportdesk/supportdesk/internal/auth"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/support"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminHandler handles admin token issuance and read-only queue views.
type AdminHandler struct {
	service     *support.Service
	exports     *export.Engine
	credentials auth.Credentials
	tokens      *auth.JWTService
	logger      zerolog.Logger
}

// AdminHandlerConfig holds the dependencies of an AdminHandler.
type AdminHandlerConfig struct {
	Service     *support.Service
	Exports     *export.Engine
	Credentials auth.Credentials
	Tokens      *auth.JWTService
	Logger      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	return &AdminHandler{
		service:     cfg.Service,
		exports:     cfg.Exports,
		credentials: cfg.Credentials,
		tokens:      cfg.Tokens,
		logger:      cfg.Logger,
	}
}

// IssueToken handles POST /v1/admin/token - exchange basic credentials for an admin token.
func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="supportdesk-admin"`)
		response.Unauthorized(w, r, "basic credentials are required")
		return
	}
	if err := h.credentials.Verify(username, password); err != nil {
		h.logger.Warn().
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("username", username).
			Msg("admin token request rejected")
		response.Unauthorized(w, r, "invalid credentials")
		return
	}

	token, expiresAt, err := h.tokens.GenerateAdminToken(username)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to sign admin token")
		response.InternalError(w, r, "failed to issue token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.AdminTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   models.Timestamp(expiresAt),
		ExpiresIn:   int(auth.AdminTokenExpiry.Seconds()),
	})
}

// ListRequests handles GET /v1/admin/requests - list queued support requests.
func (h *AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	opts := support.ListOptions{Limit: defaultListLimit}
	var errs []models.FieldError

	q := r.URL.Query()
	if v := q.Get("urgency"); v != "" {
		opts.Urgency = support.Urgency(v)
		if !opts.Urgency.Valid() {
			errs = append(errs, models.FieldError{Field: "urgency", Message: "urgency must be one of: normal, urgent"})
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			errs = append(errs, models.FieldError{Field: "limit", Message: "limit must be between 1 and " + strconv.Itoa(maxListLimit)})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, models.FieldError{Field: "offset", Message: "offset must be a non-negative integer"})
		}
		opts.Offset = n
	}
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", errs)
		return
	}

	result, err := h.service.List(r.Context(), opts)
	if err != nil {
		internalError(w, r, h.logger, err, "failed to list support requests")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SupportRequestList{
		Items: result.Items,
		Meta: models.PagedResponseMeta{
			Limit:  opts.Limit,
			Offset: opts.Offset,
			Total:  result.Total,
		},
	})
}

// Stats handles GET /v1/admin/stats - aggregate queue statistics.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.exports.GenerateExportStats(r.Context())
	if err != nil {
		internalError(w, r, h.logger, err, "failed to compute statistics")
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

// internalError logs err and writes an opaque 500 response.
func internalError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error, detail string) {
	logger.Error().Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg(detail)
	response.InternalError(w, r, detail)
}
