package export

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
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/support"
)

// DefaultDir is the export directory used when none is configured.
const DefaultDir = "data/exports"

const (
	stampLayout   = "2006-01-02T15-04-05.000"
	csvTimeLayout = "2006-01-02T15:04:05.000Z07:00"
	topTopicCount = 10
)

var exportNamePattern = regexp.MustCompile(
	`^support-requests-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z(-(urgent|normal))?(-from-\d{8})?(-to-\d{8})?(-\d+)?\.(json|csv)$`)

// Reader reads the full queue.
type Reader interface {
	ReadAll(ctx context.Context) ([]support.Request, error)
}

// Config holds configuration for the export engine.
type Config struct {
	// Dir is the export directory. Defaults to DefaultDir.
	Dir    string
	Reader Reader
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Engine writes export files and computes queue statistics. It never
// modifies the queue.
type Engine struct {
	dir    string
	reader Reader
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a new export engine.
func NewEngine(cfg Config) *Engine {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		dir:    dir,
		reader: cfg.Reader,
		logger: cfg.Logger,
		now:    now,
	}
}

// Dir returns the export directory.
func (e *Engine) Dir() string {
	return e.dir
}

// ExportRequests filters the queue, first by date range and then by urgency,
// and writes the result to a new file.
func (e *Engine) ExportRequests(ctx context.Context, opts Options) (*Result, error) {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if !opts.Format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, opts.Format)
	}
	if opts.Urgency != "" && !opts.Urgency.Valid() {
		return nil, fmt.Errorf("%w: urgency %q", ErrInvalidFilter, opts.Urgency)
	}

	records, err := e.reader.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue for export: %w", err)
	}
	filtered := Filter(records, opts)

	now := e.now().UTC().Truncate(time.Millisecond)
	var data []byte
	switch opts.Format {
	case FormatCSV:
		data = RenderCSV(filtered)
	default:
		doc := Document{Data: filtered}
		if opts.IncludeMetadata {
			doc.Metadata = &Metadata{
				ExportedAt:   now,
				TotalRecords: len(filtered),
				Filters: Filters{
					StartDate: opts.StartDate,
					EndDate:   opts.EndDate,
					Urgency:   opts.Urgency,
				},
			}
		}
		data, err = json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	filename, err := writeNew(e.dir, baseName(now, opts), string(opts.Format), data)
	if err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	e.logger.Info().
		Str("export_file", filename).
		Str("format", string(opts.Format)).
		Int("record_count", len(filtered)).
		Msg("export written")

	return &Result{
		Filename:    filename,
		Path:        filepath.Join(e.dir, filename),
		Format:      opts.Format,
		RecordCount: len(filtered),
		Size:        int64(len(data)),
	}, nil
}

// Filter applies the date range, inclusive on both ends, and then the urgency
// filter. The result is never nil.
func Filter(records []support.Request, opts Options) []support.Request {
	out := make([]support.Request, 0, len(records))
	for _, r := range records {
		if opts.StartDate != nil && r.CreatedAt.Before(*opts.StartDate) {
			continue
		}
		if opts.EndDate != nil && r.CreatedAt.After(*opts.EndDate) {
			continue
		}
		out = append(out, r)
	}
	if opts.Urgency == "" {
		return out
	}

	matched := out[:0]
	for _, r := range out {
		if r.Urgency == opts.Urgency {
			matched = append(matched, r)
		}
	}
	return matched
}

// RenderCSV renders records with a header row. Name, topic and message are
// always quoted; the other columns never are. No records yields no bytes.
func RenderCSV(records []support.Request) []byte {
	if len(records) == 0 {
		return []byte{}
	}

	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "ID,Name,Email,Topic,Message,Urgency,Created At")
	for _, r := range records {
		lines = append(lines, strings.Join([]string{
			r.ID,
			quote(r.Name),
			r.Email,
			quote(r.Topic),
			quote(r.Message),
			string(r.Urgency),
			r.CreatedAt.UTC().Format(csvTimeLayout),
		}, ","))
	}
	return []byte(strings.Join(lines, "\n"))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// GenerateExportStats summarizes the whole, unfiltered queue. An empty queue
// yields zero counts and empty lists.
func (e *Engine) GenerateExportStats(ctx context.Context) (*Stats, error) {
	records, err := e.reader.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue for stats: %w", err)
	}
	return ComputeStats(records), nil
}

// ComputeStats summarizes records. Topics are compared case-insensitively
// after trimming; ties keep first-seen order.
func ComputeStats(records []support.Request) *Stats {
	stats := &Stats{
		TotalRequests:   len(records),
		TopTopics:       []TopicCount{},
		RequestsByMonth: []MonthCount{},
	}

	topicIndex := make(map[string]int)
	monthIndex := make(map[string]int)
	for _, r := range records {
		switch r.Urgency {
		case support.UrgencyUrgent:
			stats.UrgentRequests++
		default:
			stats.NormalRequests++
		}

		created := r.CreatedAt
		if stats.DateRange.Earliest == nil || created.Before(*stats.DateRange.Earliest) {
			t := created
			stats.DateRange.Earliest = &t
		}
		if stats.DateRange.Latest == nil || created.After(*stats.DateRange.Latest) {
			t := created
			stats.DateRange.Latest = &t
		}

		topic := strings.ToLower(strings.TrimSpace(r.Topic))
		if i, ok := topicIndex[topic]; ok {
			stats.TopTopics[i].Count++
		} else {
			topicIndex[topic] = len(stats.TopTopics)
			stats.TopTopics = append(stats.TopTopics, TopicCount{Topic: topic, Count: 1})
		}

		month := created.UTC().Format("2006-01")
		if i, ok := monthIndex[month]; ok {
			stats.RequestsByMonth[i].Count++
		} else {
			monthIndex[month] = len(stats.RequestsByMonth)
			stats.RequestsByMonth = append(stats.RequestsByMonth, MonthCount{Month: month, Count: 1})
		}
	}

	sort.SliceStable(stats.TopTopics, func(i, j int) bool {
		return stats.TopTopics[i].Count > stats.TopTopics[j].Count
	})
	if len(stats.TopTopics) > topTopicCount {
		stats.TopTopics = stats.TopTopics[:topTopicCount]
	}
	sort.Slice(stats.RequestsByMonth, func(i, j int) bool {
		return stats.RequestsByMonth[i].Month < stats.RequestsByMonth[j].Month
	})
	return stats
}

// ListExports returns every export file, newest first by modification time.
func (e *Engine) ListExports() ([]Info, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("read export directory: %w", err)
	}

	exports := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !exportNamePattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			e.logger.Warn().Err(err).Str("export_file", entry.Name()).Msg("skipping unreadable export")
			continue
		}
		exports = append(exports, Info{
			Filename:  entry.Name(),
			Format:    Format(strings.TrimPrefix(filepath.Ext(entry.Name()), ".")),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime().UTC(),
		})
	}

	sort.SliceStable(exports, func(i, j int) bool {
		if !exports[i].CreatedAt.Equal(exports[j].CreatedAt) {
			return exports[i].CreatedAt.After(exports[j].CreatedAt)
		}
		return exports[i].Filename > exports[j].Filename
	})
	return exports, nil
}

// CleanupOldExports keeps the keep most recent exports and deletes the rest.
// A file that cannot be deleted is logged and skipped.
func (e *Engine) CleanupOldExports(keep int) (*CleanupResult, error) {
	if keep < 0 {
		keep = 0
	}
	exports, err := e.ListExports()
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{Deleted: []string{}}
	for i, x := range exports {
		if i < keep {
			result.Kept++
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, x.Filename)); err != nil {
			e.logger.Warn().Err(err).Str("export_file", x.Filename).Msg("failed to delete old export")
			result.Failed = append(result.Failed, x.Filename)
			continue
		}
		result.Deleted = append(result.Deleted, x.Filename)
	}

	if len(result.Deleted) > 0 {
		e.logger.Info().
			Int("deleted", len(result.Deleted)).
			Int("kept", result.Kept).
			Msg("old exports cleaned up")
	}
	return result, nil
}

// Open opens a previously written export for reading. The caller closes it.
func (e *Engine) Open(filename string) (*os.File, *Info, error) {
	if filename != filepath.Base(filename) || !exportNamePattern.MatchString(filename) {
		return nil, nil, fmt.Errorf("%w: %s", ErrExportNotFound, filename)
	}

	f, err := os.Open(filepath.Join(e.dir, filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrExportNotFound, filename)
		}
		return nil, nil, fmt.Errorf("open export: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat export: %w", err)
	}

	return f, &Info{
		Filename:  filename,
		Format:    Format(strings.TrimPrefix(filepath.Ext(filename), ".")),
		Size:      fi.Size(),
		CreatedAt: fi.ModTime().UTC(),
	}, nil
}

// baseName builds the export file name, without extension, from the export
// time and the filters in effect.
func baseName(now time.Time, opts Options) string {
	var b strings.Builder
	b.WriteString("support-requests-")
	b.WriteString(strings.Replace(now.Format(stampLayout), ".", "-", 1))
	b.WriteString("Z")
	if opts.Urgency != "" {
		b.WriteString("-" + string(opts.Urgency))
	}
	if opts.StartDate != nil {
		b.WriteString("-from-" + opts.StartDate.UTC().Format("20060102"))
	}
	if opts.EndDate != nil {
		b.WriteString("-to-" + opts.EndDate.UTC().Format("20060102"))
	}
	return b.String()
}

// writeNew creates base.ext in dir, or base-N.ext when that name is taken.
func writeNew(dir, base, ext string, data []byte) (string, error) {
	for seq := 0; seq < 1000; seq++ {
		name := base + "." + ext
		if seq > 0 {
			name = fmt.Sprintf("%s-%d.%s", base, seq, ext)
		}

		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return "", err
		}
		return name, nil
	}
	return "", fmt.Errorf("no free export name for %s", base)
}
