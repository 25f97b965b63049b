package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/supportdesk/internal/export"
	"github.com/supportdesk/supportdesk/internal/support"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, records ...support.Request) (*export.Engine, string) {
	t.Helper()
	repo := support.NewInMemoryRepository()
	for _, r := range records {
		require.NoError(t, repo.Append(context.Background(), r))
	}
	dir := filepath.Join(t.TempDir(), "exports")
	return export.NewEngine(export.Config{
		Dir:    dir,
		Reader: repo,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}), dir
}

func request(id string, urgency support.Urgency, createdAt time.Time) support.Request {
	return support.Request{
		ID:        id,
		Name:      "Jane Doe",
		Email:     "jane@example.com",
		Topic:     "Billing",
		Message:   "Please check my last invoice.",
		Urgency:   urgency,
		CreatedAt: createdAt,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 5, d, 9, 0, 0, 0, time.UTC)
}

func readDocument(t *testing.T, path string) export.Document {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc export.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func ids(records []support.Request) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestEngine_ExportFilters(t *testing.T) {
	records := []support.Request{
		request("n1", support.UrgencyNormal, day(1)),
		request("u1", support.UrgencyUrgent, day(2)),
		request("n2", support.UrgencyNormal, day(3)),
		request("u2", support.UrgencyUrgent, day(4)),
		request("u3", support.UrgencyUrgent, day(5)),
	}
	start, end := day(2), day(4)

	tests := []struct {
		name     string
		opts     export.Options
		expected []string
	}{
		{"no filters", export.Options{}, []string{"n1", "u1", "n2", "u2", "u3"}},
		{"urgent only", export.Options{Urgency: support.UrgencyUrgent}, []string{"u1", "u2", "u3"}},
		{"inclusive date range", export.Options{StartDate: &start, EndDate: &end}, []string{"u1", "n2", "u2"}},
		{"range and urgency", export.Options{StartDate: &start, EndDate: &end, Urgency: support.UrgencyUrgent}, []string{"u1", "u2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t, records...)

			result, err := engine.ExportRequests(context.Background(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, export.FormatJSON, result.Format)
			assert.Equal(t, len(tt.expected), result.RecordCount)

			doc := readDocument(t, result.Path)
			assert.Nil(t, doc.Metadata)
			assert.Equal(t, tt.expected, ids(doc.Data))
		})
	}
}

func TestEngine_ExportJSONMetadata(t *testing.T) {
	engine, _ := newTestEngine(t,
		request("n1", support.UrgencyNormal, day(1)),
		request("u1", support.UrgencyUrgent, day(2)),
	)
	start := day(1)

	result, err := engine.ExportRequests(context.Background(), export.Options{
		StartDate:       &start,
		Urgency:         support.UrgencyUrgent,
		IncludeMetadata: true,
	})
	require.NoError(t, err)

	doc := readDocument(t, result.Path)
	require.NotNil(t, doc.Metadata)
	assert.True(t, doc.Metadata.ExportedAt.Equal(testNow))
	assert.Equal(t, 1, doc.Metadata.TotalRecords)
	assert.Equal(t, support.UrgencyUrgent, doc.Metadata.Filters.Urgency)
	require.NotNil(t, doc.Metadata.Filters.StartDate)
	assert.Nil(t, doc.Metadata.Filters.EndDate)
}

func TestEngine_ExportFilenames(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	start, end := day(1), day(31)

	plain, err := engine.ExportRequests(ctx, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, "support-requests-2024-06-01T12-00-00-000Z.json", plain.Filename)

	filtered, err := engine.ExportRequests(ctx, export.Options{
		Format:    export.FormatCSV,
		Urgency:   support.UrgencyUrgent,
		StartDate: &start,
		EndDate:   &end,
	})
	require.NoError(t, err)
	assert.Equal(t, "support-requests-2024-06-01T12-00-00-000Z-urgent-from-20240501-to-20240531.csv", filtered.Filename)

	again, err := engine.ExportRequests(ctx, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, "support-requests-2024-06-01T12-00-00-000Z-1.json", again.Filename)
}

func TestEngine_ExportCSV(t *testing.T) {
	r := request("req-1", support.UrgencyUrgent, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC))
	r.Name = `Jane "JD" Doe`
	r.Topic = "Login, again"
	r.Message = `It says "denied"`

	engine, _ := newTestEngine(t, r, request("req-2", support.UrgencyNormal, day(2)))

	result, err := engine.ExportRequests(context.Background(), export.Options{Format: export.FormatCSV})
	require.NoError(t, err)

	raw, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Name,Email,Topic,Message,Urgency,Created At", lines[0])
	assert.Equal(t,
		`req-1,"Jane ""JD"" Doe",jane@example.com,"Login, again","It says ""denied""",urgent,2024-05-01T10:30:00.000Z`,
		lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `req-2,"Jane Doe",jane@example.com,"Billing",`))
}

func TestEngine_ExportEmptyCSVIsZeroBytes(t *testing.T) {
	engine, _ := newTestEngine(t, request("n1", support.UrgencyNormal, day(1)))

	result, err := engine.ExportRequests(context.Background(), export.Options{
		Format:  export.FormatCSV,
		Urgency: support.UrgencyUrgent,
	})
	require.NoError(t, err)
	assert.Zero(t, result.RecordCount)

	fi, err := os.Stat(result.Path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
}

func TestEngine_ExportEmptyJSON(t *testing.T) {
	engine, _ := newTestEngine(t)

	result, err := engine.ExportRequests(context.Background(), export.Options{})
	require.NoError(t, err)

	raw, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(raw))
}

func TestEngine_ExportInvalidFormat(t *testing.T) {
	engine, dir := newTestEngine(t)

	_, err := engine.ExportRequests(context.Background(), export.Options{Format: "xml"})
	assert.ErrorIs(t, err, export.ErrInvalidFormat)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEngine_ExportInvalidUrgency(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.ExportRequests(context.Background(), export.Options{Urgency: "critical"})
	assert.ErrorIs(t, err, export.ErrInvalidFilter)
}

type failingReader struct{}

func (failingReader) ReadAll(context.Context) ([]support.Request, error) {
	return nil, errors.New("disk on fire")
}

func TestEngine_ExportReadError(t *testing.T) {
	engine := export.NewEngine(export.Config{
		Dir:    t.TempDir(),
		Reader: failingReader{},
		Logger: zerolog.Nop(),
	})

	_, err := engine.ExportRequests(context.Background(), export.Options{})
	assert.ErrorContains(t, err, "disk on fire")

	_, err = engine.GenerateExportStats(context.Background())
	assert.ErrorContains(t, err, "disk on fire")
}

func TestEngine_StatsScenario(t *testing.T) {
	a := request("a", support.UrgencyNormal, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	b := request("b", support.UrgencyUrgent, a.CreatedAt.Add(time.Second))
	engine, _ := newTestEngine(t, a, b)

	stats, err := engine.GenerateExportStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 1, stats.UrgentRequests)
	assert.Equal(t, 1, stats.NormalRequests)
	require.NotNil(t, stats.DateRange.Earliest)
	require.NotNil(t, stats.DateRange.Latest)
	assert.True(t, stats.DateRange.Earliest.Equal(a.CreatedAt))
	assert.True(t, stats.DateRange.Latest.Equal(b.CreatedAt))
}

func TestEngine_StatsEmptyQueue(t *testing.T) {
	engine, _ := newTestEngine(t)

	stats, err := engine.GenerateExportStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRequests)
	assert.Nil(t, stats.DateRange.Earliest)
	assert.NotNil(t, stats.TopTopics)
	assert.Empty(t, stats.TopTopics)
	assert.NotNil(t, stats.RequestsByMonth)
	assert.Empty(t, stats.RequestsByMonth)
}

func TestComputeStats_TopicsAndMonths(t *testing.T) {
	var records []support.Request
	add := func(topic string, created time.Time) {
		r := request("x", support.UrgencyNormal, created)
		r.Topic = topic
		records = append(records, r)
	}
	add("Login", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	add("billing", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	add("  LOGIN ", time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
	add("Billing", time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC))
	add("other", time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC))

	stats := export.ComputeStats(records)

	require.Len(t, stats.TopTopics, 3)
	assert.Equal(t, export.TopicCount{Topic: "login", Count: 2}, stats.TopTopics[0])
	assert.Equal(t, export.TopicCount{Topic: "billing", Count: 2}, stats.TopTopics[1])
	assert.Equal(t, export.TopicCount{Topic: "other", Count: 1}, stats.TopTopics[2])

	assert.Equal(t, []export.MonthCount{
		{Month: "2023-12", Count: 1},
		{Month: "2024-01", Count: 2},
		{Month: "2024-03", Count: 2},
	}, stats.RequestsByMonth)
}

func TestComputeStats_TopTenOnly(t *testing.T) {
	var records []support.Request
	for i := 0; i < 12; i++ {
		r := request("x", support.UrgencyNormal, day(1))
		r.Topic = string(rune('a' + i))
		records = append(records, r)
	}

	stats := export.ComputeStats(records)
	require.Len(t, stats.TopTopics, 10)
	assert.Equal(t, "a", stats.TopTopics[0].Topic)
	assert.Equal(t, "j", stats.TopTopics[9].Topic)
}

func TestEngine_ListAndCleanupExports(t *testing.T) {
	engine, dir := newTestEngine(t)
	ctx := context.Background()

	var created []string
	for i := 0; i < 4; i++ {
		result, err := engine.ExportRequests(ctx, export.Options{})
		require.NoError(t, err)
		mtime := testNow.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(result.Path, mtime, mtime))
		created = append(created, result.Filename)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	exports, err := engine.ListExports()
	require.NoError(t, err)
	require.Len(t, exports, 4)
	assert.Equal(t, created[3], exports[0].Filename)
	assert.Equal(t, export.FormatJSON, exports[0].Format)

	result, err := engine.CleanupOldExports(1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Kept)
	assert.Len(t, result.Deleted, 3)

	exports, err = engine.ListExports()
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, created[3], exports[0].Filename)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestEngine_ListExportsMissingDir(t *testing.T) {
	engine, _ := newTestEngine(t)

	exports, err := engine.ListExports()
	require.NoError(t, err)
	assert.Empty(t, exports)
}

func TestEngine_Open(t *testing.T) {
	engine, _ := newTestEngine(t, request("n1", support.UrgencyNormal, day(1)))

	result, err := engine.ExportRequests(context.Background(), export.Options{Format: export.FormatCSV})
	require.NoError(t, err)

	f, info, err := engine.Open(result.Filename)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, export.FormatCSV, info.Format)
	assert.Equal(t, result.Size, info.Size)

	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "ID,Name"))

	for _, name := range []string{"../secret.json", "support-requests-2020-01-01T00-00-00-000Z.json", "random.csv"} {
		_, _, err := engine.Open(name)
		assert.ErrorIs(t, err, export.ErrExportNotFound, name)
	}
}
