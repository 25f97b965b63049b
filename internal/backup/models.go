// Package backup snapshots the support queue to timestamped files, restores
// it from them, and enforces data retention.
package backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/supportdesk/supportdesk/internal/support"
)

// FormatVersion is written into every backup's metadata.
const FormatVersion = "1.0"

// DefaultKeep is how many backups the maintenance cleanup retains.
const DefaultKeep = 30

// MaxRetentionDays caps retention periods well below the point where a day
// count overflows time.Duration.
const MaxRetentionDays = 36500

// ErrBackupNotFound is returned when a named backup does not exist.
var ErrBackupNotFound = errors.New("backup not found")

// ErrInvalidRetentionPeriod is returned for a negative retention period or
// one longer than MaxRetentionDays.
var ErrInvalidRetentionPeriod = errors.New("invalid retention period")

// RetentionPeriod converts a day count in [0, MaxRetentionDays] to a duration.
func RetentionPeriod(days int) (time.Duration, error) {
	if days < 0 || days > MaxRetentionDays {
		return 0, fmt.Errorf("%w: %d days is outside 0..%d", ErrInvalidRetentionPeriod, days, MaxRetentionDays)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

// InvalidBackupFormatError reports a backup that fails structural validation.
type InvalidBackupFormatError struct {
	Filename string
	Reason   string
}

func (e *InvalidBackupFormatError) Error() string {
	return fmt.Sprintf("invalid backup format in %s: %s", e.Filename, e.Reason)
}

// Metadata describes the queue at the moment a backup was taken.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalRequests int       `json:"totalRequests"`
	FileSize      int64     `json:"fileSize"`
	Version       string    `json:"version"`
}

// Snapshot is the on-disk backup document.
type Snapshot struct {
	Metadata Metadata          `json:"metadata"`
	Data     []support.Request `json:"data"`
}

// Info describes a backup file.
type Info struct {
	Filename string `json:"filename"`
	Metadata

	// Size is the size of the backup file itself.
	Size int64 `json:"size"`

	seq int
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Filename        string `json:"filename"`
	RestoredRecords int    `json:"restoredRecords"`

	// SafetyBackup is the snapshot of the queue taken just before it was replaced.
	SafetyBackup *Info `json:"safetyBackup"`
}

// CleanupResult describes a backup cleanup pass.
type CleanupResult struct {
	Kept    int      `json:"kept"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// RetentionResult describes a retention pass.
type RetentionResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Kept    int       `json:"kept"`
	Removed int       `json:"removed"`

	// Backup is the pre-retention snapshot, nil when nothing was removed.
	Backup *Info `json:"backup,omitempty"`
}
