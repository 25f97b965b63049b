package support

import (
	"errors"
	"sort"
	"strings"
)

// ErrStoreUnavailable is returned when the queue store is failing and writes
// are being short-circuited.
var ErrStoreUnavailable = errors.New("support request store unavailable")

// ValidationError reports every invalid field of a submission, one message per field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid support request: " + strings.Join(e.FieldNames(), ", ")
}

// FieldNames returns the invalid field names in sorted order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
