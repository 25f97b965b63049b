package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

var errLockBusy = errors.New("queue lock held by another process")

// fileLock is an advisory lock file shared by every process that opens the
// same queue with locking enabled.
type fileLock struct {
	lock    *flock.Flock
	timeout time.Duration
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &fileLock{
		lock:    flock.New(path),
		timeout: timeout,
	}
}

// acquire takes the lock, exclusive for writers and shared for readers,
// retrying with exponential backoff until the timeout elapses.
func (l *fileLock) acquire(ctx context.Context, exclusive bool) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = l.timeout

	operation := func() error {
		var ok bool
		var err error
		if exclusive {
			ok, err = l.lock.TryLock()
		} else {
			ok, err = l.lock.TryRLock()
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire queue lock: %w", err))
		}
		if !ok {
			return errLockBusy
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if errors.Is(err, errLockBusy) {
		return ErrLockTimeout
	}
	return err
}

func (l *fileLock) release() error {
	return l.lock.Unlock()
}

func (l *fileLock) path() string {
	return l.lock.Path()
}
