package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses a time of day ("HH:MM" or "HH:MM:SS") into an offset from midnight
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	limits := []int{24, 60, 60}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var offset time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		offset += time.Duration(n) * units[i]
	}
	if offset > 24*time.Hour {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return offset, nil
}

// FromClock builds a schedule from parallel clock-string and value arrays.
// ends may be nil. The caller is expected to have checked the array lengths.
func FromClock[T any](starts, ends []string, values []T, opts ...Option) (*Schedule[T], error) {
	if len(starts) != len(values) || (len(ends) != 0 && len(ends) != len(starts)) {
		return nil, fmt.Errorf("mismatched schedule arrays: %d starts, %d ends, %d values", len(starts), len(ends), len(values))
	}

	items := make([]Item[T], len(starts))
	for i := range starts {
		start, err := ParseClock(starts[i])
		if err != nil {
			return nil, fmt.Errorf("entry %d start: %w", i, err)
		}
		if start == 24*time.Hour {
			return nil, fmt.Errorf("entry %d start: %q is not a valid start", i, starts[i])
		}
		items[i] = Item[T]{Start: start, Value: values[i]}
		if len(ends) != 0 {
			end, err := ParseClock(ends[i])
			if err != nil {
				return nil, fmt.Errorf("entry %d end: %w", i, err)
			}
			if end == 24*time.Hour {
				end = 0
			}
			items[i].End = end
		}
	}
	return New(items, opts...)
}
