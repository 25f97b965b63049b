// Package export renders filtered copies of the support queue as JSON or CSV
// files and computes aggregate statistics over it.
package export

import (
	"errors"
	"time"

	"github.com/supportdesk/supportdesk/internal/support"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatCSV
}

// DefaultKeep is how many exports a cleanup retains when no count is given.
const DefaultKeep = 10

var (
	// ErrExportNotFound is returned when a named export does not exist.
	ErrExportNotFound = errors.New("export not found")

	// ErrInvalidFormat is returned for an unsupported export format.
	ErrInvalidFormat = errors.New("invalid export format")

	// ErrInvalidFilter is returned for a malformed urgency or date filter.
	ErrInvalidFilter = errors.New("invalid export filter")
)

// Options selects and shapes the records of an export.
type Options struct {
	// Format defaults to JSON.
	Format Format

	// StartDate and EndDate are inclusive bounds on createdAt.
	StartDate *time.Time
	EndDate   *time.Time

	// Urgency keeps only records with this urgency when set.
	Urgency support.Urgency

	// IncludeMetadata adds a metadata block to JSON exports.
	IncludeMetadata bool
}

// Filters records the filters an export actually applied.
type Filters struct {
	StartDate *time.Time      `json:"startDate,omitempty"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
	Urgency   support.Urgency `json:"urgency,omitempty"`
}

// Metadata is the optional header of a JSON export.
type Metadata struct {
	ExportedAt   time.Time `json:"exportedAt"`
	TotalRecords int       `json:"totalRecords"`
	Filters      Filters   `json:"filters"`
}

// Document is the JSON export file content.
type Document struct {
	Metadata *Metadata        `json:"metadata,omitempty"`
	Data     []support.Request `json:"data"`
}

// Result describes a written export file.
type Result struct {
	Filename    string `json:"filename"`
	Path        string `json:"-"`
	Format      Format `json:"format"`
	RecordCount int    `json:"recordCount"`
	Size        int64  `json:"size"`
}

// Info describes an export file on disk.
type Info struct {
	Filename  string    `json:"filename"`
	Format    Format    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// CleanupResult describes an export cleanup pass.
type CleanupResult struct {
	Kept    int      `json:"kept"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// DateRange holds the earliest and latest createdAt in the queue.
type DateRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}

// TopicCount is the number of requests filed under one topic.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// MonthCount is the number of requests created in one YYYY-MM month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Stats summarizes the whole queue.
type Stats struct {
	TotalRequests   int          `json:"totalRequests"`
	UrgentRequests  int          `json:"urgentRequests"`
	NormalRequests  int          `json:"normalRequests"`
	DateRange       DateRange    `json:"dateRange"`
	TopTopics       []TopicCount `json:"topTopics"`
	RequestsByMonth []MonthCount `json:"requestsByMonth"`
}
