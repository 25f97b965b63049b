package export

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDateBound parses a date filter given either as YYYY-MM-DD or as an
// RFC 3339 timestamp. A bare date is taken as the start of that UTC day, or as
// its last millisecond when end is true, so both bounds include the whole day.
func ParseDateBound(s string, end bool) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		if end {
			return t.Add(24*time.Hour - time.Millisecond), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD or RFC 3339", ErrInvalidFilter, s)
	}
	return t.UTC(), nil
}
