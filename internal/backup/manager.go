package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/support"
)

// DefaultDir is the backup directory used when none is configured.
const DefaultDir = "data/backups"

const stampLayout = "2006-01-02T15-04-05.000"

// backupNamePattern matches backup-2024-05-01T10-00-00-000Z.json, with an
// optional -N suffix when several backups share a millisecond.
var backupNamePattern = regexp.MustCompile(`^backup-(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z)(?:-(\d+))?\.json$`)

// QueueStore is the queue access the manager needs.
type QueueStore interface {
	Snapshot(ctx context.Context) (queue.Snapshot, error)
	Mutate(ctx context.Context, fn queue.Mutation) error
}

// Config holds configuration for the backup manager.
type Config struct {
	// Dir is the backup directory. Defaults to DefaultDir.
	Dir    string
	Store  QueueStore
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Manager creates, lists, restores and prunes queue backups.
type Manager struct {
	dir    string
	store  QueueStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a new backup manager.
func NewManager(cfg Config) *Manager {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		dir:    dir,
		store:  cfg.Store,
		logger: cfg.Logger,
		now:    now,
	}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// CreateBackup writes a snapshot of the current queue to a new backup file.
func (m *Manager) CreateBackup(ctx context.Context) (*Info, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue for backup: %w", err)
	}
	return m.writeSnapshot(snap)
}

// ListBackups returns every readable backup, newest first by metadata
// timestamp. Files that cannot be parsed are skipped with a warning.
func (m *Manager) ListBackups() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := backupNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		info, err := m.readInfo(entry.Name())
		if err != nil {
			m.logger.Warn().Err(err).Str("backup_file", entry.Name()).Msg("skipping unreadable backup")
			continue
		}
		if match[2] != "" {
			info.seq, _ = strconv.Atoi(match[2])
		}
		backups = append(backups, *info)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if !backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Timestamp.After(backups[j].Timestamp)
		}
		return backups[i].seq > backups[j].seq
	})
	return backups, nil
}

// RestoreFromBackup replaces the whole queue with the content of the named
// backup. The current queue is backed up first so the restore can itself be
// undone. A backup that fails validation leaves the queue untouched.
func (m *Manager) RestoreFromBackup(ctx context.Context, filename string) (*RestoreResult, error) {
	snap, err := m.loadForRestore(filename)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		Filename:        filename,
		RestoredRecords: len(snap.Data),
	}
	err = m.store.Mutate(ctx, func(current queue.Snapshot) ([]support.Request, bool, error) {
		safety, err := m.writeSnapshot(current)
		if err != nil {
			return nil, false, fmt.Errorf("safety backup before restore: %w", err)
		}
		result.SafetyBackup = safety
		return snap.Data, true, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("backup_file", filename).
		Str("safety_backup", result.SafetyBackup.Filename).
		Int("record_count", result.RestoredRecords).
		Msg("queue restored from backup")
	return result, nil
}

// CleanupOldBackups keeps the keep most recent backups and deletes the rest.
// A file that cannot be deleted is logged and skipped.
func (m *Manager) CleanupOldBackups(keep int) (*CleanupResult, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := m.ListBackups()
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{Deleted: []string{}}
	for i, b := range backups {
		if i < keep {
			result.Kept++
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, b.Filename)); err != nil {
			m.logger.Warn().Err(err).Str("backup_file", b.Filename).Msg("failed to delete old backup")
			result.Failed = append(result.Failed, b.Filename)
			continue
		}
		result.Deleted = append(result.Deleted, b.Filename)
	}

	if len(result.Deleted) > 0 {
		m.logger.Info().
			Int("deleted", len(result.Deleted)).
			Int("kept", result.Kept).
			Msg("old backups cleaned up")
	}
	return result, nil
}

// ApplyDataRetention removes requests created at or before now-period. When
// anything would be removed, the full pre-retention queue is backed up first;
// otherwise nothing is written at all.
//
// Periods outside 0..MaxRetentionDays fail with ErrInvalidRetentionPeriod
// before the queue is read.
func (m *Manager) ApplyDataRetention(ctx context.Context, period time.Duration) (*RetentionResult, error) {
	if period < 0 || period > MaxRetentionDays*24*time.Hour {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRetentionPeriod, period)
	}

	result := &RetentionResult{Cutoff: m.now().Add(-period).UTC()}

	err := m.store.Mutate(ctx, func(current queue.Snapshot) ([]support.Request, bool, error) {
		kept := make([]support.Request, 0, len(current.Records))
		for _, r := range current.Records {
			if r.CreatedAt.After(result.Cutoff) {
				kept = append(kept, r)
			}
		}
		result.Kept = len(kept)
		result.Removed = len(current.Records) - len(kept)
		if result.Removed == 0 {
			return nil, false, nil
		}

		info, err := m.writeSnapshot(current)
		if err != nil {
			return nil, false, fmt.Errorf("backup before retention: %w", err)
		}
		result.Backup = info
		return kept, true, nil
	})
	if err != nil {
		return nil, err
	}

	if result.Removed > 0 {
		m.logger.Info().
			Time("cutoff", result.Cutoff).
			Int("removed", result.Removed).
			Int("kept", result.Kept).
			Str("backup_file", result.Backup.Filename).
			Msg("data retention applied")
	}
	return result, nil
}

// writeSnapshot writes snap to a new backup file named after the current time.
func (m *Manager) writeSnapshot(snap queue.Snapshot) (*Info, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	records := snap.Records
	if records == nil {
		records = []support.Request{}
	}
	ts := m.now().UTC().Truncate(time.Millisecond)
	doc := Snapshot{
		Metadata: Metadata{
			Timestamp:     ts,
			TotalRequests: len(records),
			FileSize:      snap.Size,
			Version:       FormatVersion,
		},
		Data: records,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	filename, seq, err := writeNew(m.dir, backupBaseName(ts), data)
	if err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	m.logger.Info().
		Str("backup_file", filename).
		Int("record_count", len(records)).
		Msg("backup created")

	return &Info{
		Filename: filename,
		Metadata: doc.Metadata,
		Size:     int64(len(data)),
		seq:      seq,
	}, nil
}

func (m *Manager) readInfo(filename string) (*Info, error) {
	path := filepath.Join(m.dir, filename)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc struct {
		Metadata *Metadata `json:"metadata"`
	}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse backup: %w", err)
	}
	if doc.Metadata == nil {
		return nil, errors.New("backup has no metadata")
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &Info{
		Filename: filename,
		Metadata: *doc.Metadata,
		Size:     stat.Size(),
	}, nil
}

// loadForRestore reads a backup and checks it is safe to restore: every record
// carries the required fields and the declared count matches the data.
func (m *Manager) loadForRestore(filename string) (*Snapshot, error) {
	if filename != filepath.Base(filename) || !backupNamePattern.MatchString(filename) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
	}

	data, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, filename)
		}
		return nil, fmt.Errorf("read backup: %w", err)
	}

	var doc struct {
		Metadata *Metadata         `json:"metadata"`
		Data     []support.Request `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &InvalidBackupFormatError{Filename: filename, Reason: err.Error()}
	}
	if doc.Metadata == nil {
		return nil, &InvalidBackupFormatError{Filename: filename, Reason: "missing metadata"}
	}
	if doc.Data == nil {
		return nil, &InvalidBackupFormatError{Filename: filename, Reason: "missing data array"}
	}
	if doc.Metadata.TotalRequests != len(doc.Data) {
		return nil, &InvalidBackupFormatError{
			Filename: filename,
			Reason: fmt.Sprintf("metadata declares %d requests but data holds %d",
				doc.Metadata.TotalRequests, len(doc.Data)),
		}
	}
	for i, r := range doc.Data {
		if missing := missingFields(r); len(missing) > 0 {
			return nil, &InvalidBackupFormatError{
				Filename: filename,
				Reason:   fmt.Sprintf("record %d missing required fields: %s", i, strings.Join(missing, ", ")),
			}
		}
	}

	return &Snapshot{Metadata: *doc.Metadata, Data: doc.Data}, nil
}

func missingFields(r support.Request) []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"id", r.ID},
		{"name", r.Name},
		{"email", r.Email},
		{"topic", r.Topic},
		{"message", r.Message},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func backupBaseName(ts time.Time) string {
	return "backup-" + strings.Replace(ts.Format(stampLayout), ".", "-", 1) + "Z"
}

// writeNew creates base.json in dir, or base-N.json when that name is taken.
// Existing files are never overwritten.
func writeNew(dir, base string, data []byte) (string, int, error) {
	for seq := 0; seq < 1000; seq++ {
		name := base + ".json"
		if seq > 0 {
			name = fmt.Sprintf("%s-%d.json", base, seq)
		}

		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", 0, err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", 0, err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return "", 0, err
		}
		return name, seq, nil
	}
	return "", 0, fmt.Errorf("no free backup name for %s", base)
}
