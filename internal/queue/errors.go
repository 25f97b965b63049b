package queue

import (
	"errors"
	"fmt"
)

// ErrLockTimeout is returned when the cross-process queue lock could not be
// acquired before the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for queue lock")

// CorruptQueueError reports a queue file whose content is not a valid
// sequence of support requests. The file is never repaired automatically;
// restore a backup or fix the file by hand.
type CorruptQueueError struct {
	Path string
	Err  error
}

func (e *CorruptQueueError) Error() string {
	return fmt.Sprintf("queue file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptQueueError) Unwrap() error {
	return e.Err
}

// IsCorrupt reports whether err is or wraps a *CorruptQueueError.
func IsCorrupt(err error) bool {
	var corrupt *CorruptQueueError
	return errors.As(err, &corrupt)
}
