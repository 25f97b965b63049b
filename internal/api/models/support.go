package models

import (
	"github.com/supportdesk/supportdesk/internal/backup"
	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/support"
)

// SupportRequestList is a page of support requests, newest first.
type SupportRequestList struct {
	Items []support.Request `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// AdminTokenResponse is returned when admin credentials are exchanged for a token.
type AdminTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   Timestamp `json:"expiresAt"`
	ExpiresIn   int       `json:"expiresIn"`
}

// BackupList lists backups, newest first.
type BackupList struct {
	Items []backup.Info `json:"items"`
}

// ExportList lists export files, newest first.
type ExportList struct {
	Items []export.Info `json:"items"`
}

// ExportCreateRequest is the body of POST /v1/admin/exports.
// Dates are YYYY-MM-DD or RFC 3339; a bare end date includes the whole day.
type ExportCreateRequest struct {
	Format          string `json:"format,omitempty"`
	Urgency         string `json:"urgency,omitempty"`
	StartDate       string `json:"startDate,omitempty"`
	EndDate         string `json:"endDate,omitempty"`
	IncludeMetadata bool   `json:"includeMetadata,omitempty"`
}
