// Package queue persists support requests as a single JSON array file.
//
// Every mutation is a whole-file read-modify-write: the current array is read,
// the next array computed, and the result written to a temporary file that is
// renamed over the queue. Readers therefore never observe a partial file.
//
// Within one process, Store serializes mutations with a mutex, so appends never
// interleave their read and write halves. Across processes there is no
// coordination by default: two processes appending at the same time can each
// write back a queue missing the other's record. Setting Config.Lock adds an
// advisory lock file that closes that window for processes that all enable it.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/supportdesk/supportdesk/internal/support"
)

// DefaultPath is the queue location used when no override is configured.
const DefaultPath = "data/support-queue.json"

// Config holds configuration for the queue store.
type Config struct {
	// Path overrides the queue file location. Defaults to DefaultPath.
	Path string

	// Lock enables the cross-process advisory lock.
	Lock bool

	// LockTimeout bounds how long an operation waits for the lock.
	// Default: 5 seconds
	LockTimeout time.Duration

	Logger zerolog.Logger
}

// Snapshot is the queue content at one point in time.
type Snapshot struct {
	Records []support.Request

	// Size is the queue file size in bytes.
	Size int64
}

// Mutation computes the next queue content from the current snapshot.
// Returning changed=false leaves the file untouched.
type Mutation func(current Snapshot) (next []support.Request, changed bool, err error)

// Store is the file-backed queue of support requests.
type Store struct {
	path   string
	logger zerolog.Logger
	lock   *fileLock

	mu sync.Mutex
}

// NewStore creates a queue store. It does not touch the filesystem.
func NewStore(cfg Config) *Store {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	s := &Store{
		path:   path,
		logger: cfg.Logger,
	}
	if cfg.Lock {
		s.lock = newFileLock(path+".lock", cfg.LockTimeout)
	}
	return s
}

// Locate returns the queue file path.
func (s *Store) Locate() string {
	return s.path
}

// Ensure creates the queue file, and its parent directories, as an empty
// array if it does not exist. Existing content is never modified.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

func (s *Store) ensure() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat queue file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	if err := writeFileAtomic(s.path, []byte("[]\n")); err != nil {
		return fmt.Errorf("initialize queue file: %w", err)
	}

	s.logger.Info().Str("queue_file", s.path).Msg("initialized empty queue file")
	return nil
}

// ReadAll returns every stored request in arrival order.
func (s *Store) ReadAll(ctx context.Context) ([]support.Request, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Snapshot returns the current queue content and file size.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, false); err != nil {
		return Snapshot{}, err
	}
	defer s.release()

	return s.read()
}

// Append adds a request to the end of the queue.
func (s *Store) Append(ctx context.Context, r support.Request) error {
	return s.Mutate(ctx, func(current Snapshot) ([]support.Request, bool, error) {
		return append(current.Records, r), true, nil
	})
}

// Replace overwrites the whole queue with records.
func (s *Store) Replace(ctx context.Context, records []support.Request) error {
	return s.Mutate(ctx, func(Snapshot) ([]support.Request, bool, error) {
		return records, true, nil
	})
}

// Mutate runs fn as one read-modify-write unit. No other mutation in this
// process, and no locking process when Config.Lock is set, can run between
// the read and the write.
func (s *Store) Mutate(ctx context.Context, fn Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquire(ctx, true); err != nil {
		return err
	}
	defer s.release()

	current, err := s.read()
	if err != nil {
		return err
	}

	next, changed, err := fn(current)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.write(next)
}

func (s *Store) read() (Snapshot, error) {
	if err := s.ensure(); err != nil {
		return Snapshot{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read queue file: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return Snapshot{}, &CorruptQueueError{Path: s.path, Err: err}
	}

	return Snapshot{Records: records, Size: int64(len(data))}, nil
}

func (s *Store) write(records []support.Request) error {
	data, err := Encode(records)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write queue file: %w", err)
	}
	return nil
}

func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	if s.lock == nil {
		return nil
	}
	// The lock file lives beside the queue file.
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}
	return s.lock.acquire(ctx, exclusive)
}

func (s *Store) release() {
	if s.lock == nil {
		return
	}
	if err := s.lock.release(); err != nil {
		s.logger.Warn().Err(err).Str("lock_file", s.lock.path()).Msg("failed to release queue lock")
	}
}

func decode(data []byte) ([]support.Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("content is not a JSON array")
	}

	var records []support.Request
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []support.Request{}
	}
	return records, nil
}

// Encode renders records in the queue file format. A nil slice is written as
// an empty array.
func Encode(records []support.Request) ([]byte, error) {
	if records == nil {
		records = []support.Request{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeFileAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) // no-op after a successful rename
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Ensure Store implements support.Repository interface.
var _ support.Repository = (*Store)(nil)
