package queue_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/supportdesk/internal/queue"
	"github.com/supportdesk/supportdesk/internal/support"
)

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()
	return queue.NewStore(queue.Config{
		Path:   filepath.Join(t.TempDir(), "nested", "dir", "queue.json"),
		Logger: zerolog.Nop(),
	})
}

func testRequest(id string) support.Request {
	return support.Request{
		ID:        id,
		Name:      "Test User",
		Email:     "test@example.com",
		Topic:     "Login",
		Message:   "I cannot log in to my account.",
		Urgency:   support.UrgencyNormal,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStore_LocateDefault(t *testing.T) {
	store := queue.NewStore(queue.Config{Logger: zerolog.Nop()})
	assert.Equal(t, queue.DefaultPath, store.Locate())
}

func TestStore_EnsureCreatesEmptyQueue(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Ensure())

	data, err := os.ReadFile(store.Locate())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	records, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_EnsureIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRequest("a")))
	before, err := os.ReadFile(store.Locate())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Ensure())
	}

	after, err := os.ReadFile(store.Locate())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, testRequest(fmt.Sprintf("req-%d", i))))
	}

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("req-%d", i), r.ID)
		assert.True(t, r.CreatedAt.Equal(testRequest("").CreatedAt))
	}
}

func TestStore_ReadAllCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"truncated array", `[{"id":"a"`},
		{"object instead of array", `{"id":"a"}`},
		{"null", "null"},
		{"array of numbers", "[1,2,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, store.Ensure())
			require.NoError(t, os.WriteFile(store.Locate(), []byte(tt.content), 0o644))

			_, err := store.ReadAll(context.Background())
			require.Error(t, err)

			var corrupt *queue.CorruptQueueError
			require.ErrorAs(t, err, &corrupt)
			assert.Equal(t, store.Locate(), corrupt.Path)
			assert.True(t, queue.IsCorrupt(err))

			// Corrupt files are never repaired.
			data, err := os.ReadFile(store.Locate())
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestStore_AppendRefusesCorruptQueue(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Ensure())
	require.NoError(t, os.WriteFile(store.Locate(), []byte("garbage"), 0o644))

	err := store.Append(context.Background(), testRequest("a"))
	assert.True(t, queue.IsCorrupt(err))
}

func TestStore_Replace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, testRequest("old")))

	require.NoError(t, store.Replace(ctx, []support.Request{testRequest("new-1"), testRequest("new-2")}))

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new-1", records[0].ID)

	require.NoError(t, store.Replace(ctx, nil))
	data, err := os.ReadFile(store.Locate())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestStore_MutateUnchangedSkipsWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, testRequest("a")))

	info, err := os.Stat(store.Locate())
	require.NoError(t, err)

	var seen queue.Snapshot
	err = store.Mutate(ctx, func(current queue.Snapshot) ([]support.Request, bool, error) {
		seen = current
		return nil, false, nil
	})
	require.NoError(t, err)

	assert.Len(t, seen.Records, 1)
	assert.Equal(t, info.Size(), seen.Size)

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_LeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, testRequest(fmt.Sprintf("%d", i))))
	}

	entries, err := os.ReadDir(filepath.Dir(store.Locate()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "queue.json", entries[0].Name())
}

// Appends from one process never lose records, however many goroutines race.
func TestStore_ConcurrentAppendsInOneProcess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, testRequest(fmt.Sprintf("req-%d", i))))
		}(i)
	}
	wg.Wait()

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

// Two stores on the same file stand in for two processes. Without the lock,
// an append that lands between the other's read and write is lost.
func TestStore_MultiProcessAppendIsNotAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	procA := queue.NewStore(queue.Config{Path: path, Logger: zerolog.Nop()})
	procB := queue.NewStore(queue.Config{Path: path, Logger: zerolog.Nop()})
	ctx := context.Background()

	err := procA.Mutate(ctx, func(current queue.Snapshot) ([]support.Request, bool, error) {
		require.NoError(t, procB.Append(ctx, testRequest("from-b")))
		return append(current.Records, testRequest("from-a")), true, nil
	})
	require.NoError(t, err)

	records, err := procA.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "B's record is overwritten by A's stale write")
	assert.Equal(t, "from-a", records[0].ID)
}

func TestStore_LockBlocksOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	cfg := queue.Config{Path: path, Lock: true, LockTimeout: 100 * time.Millisecond, Logger: zerolog.Nop()}
	procA := queue.NewStore(cfg)
	procB := queue.NewStore(cfg)
	ctx := context.Background()

	var innerErr error
	err := procA.Mutate(ctx, func(current queue.Snapshot) ([]support.Request, bool, error) {
		innerErr = procB.Append(ctx, testRequest("from-b"))
		return append(current.Records, testRequest("from-a")), true, nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, innerErr, queue.ErrLockTimeout)

	// Once released, B can append without losing A's record.
	require.NoError(t, procB.Append(ctx, testRequest("from-b")))

	records, err := procA.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "from-a", records[0].ID)
	assert.Equal(t, "from-b", records[1].ID)
}
