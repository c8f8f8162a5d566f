// Package schedule resolves repeating time-of-day schedules (basal rates,
// sensitivities, carb ratios, correction ranges) against absolute time.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DefaultRepeat is the repeat period of daily schedules
const DefaultRepeat = 24 * time.Hour

var (
	// ErrEmpty is returned when a schedule has no entries
	ErrEmpty = errors.New("schedule has no entries")
	// ErrUnordered is returned when entry start offsets are not strictly increasing
	ErrUnordered = errors.New("schedule entries are not in time order")
)

// Item is one breakpoint of a schedule. Start and End are offsets from
// midnight. A zero End means the item runs until the next item starts.
type Item[T any] struct {
	Start time.Duration
	End   time.Duration
	Value T
}

// Entry is a schedule value resolved to an absolute interval
type Entry[T any] struct {
	Start time.Time
	End   time.Time
	Value T
}

// Schedule is a piecewise-constant value that repeats every period
type Schedule[T any] struct {
	items  []Item[T]
	repeat time.Duration
	loc    *time.Location
}

// Option configures a Schedule
type Option func(*options)

type options struct {
	repeat time.Duration
	loc    *time.Location
}

// WithLocation sets the time zone the offsets are measured in
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// New creates a schedule from breakpoints sorted by start offset.
// Items without an explicit end extend to the next item, and the last one
// wraps around to the first.
func New[T any](items []Item[T], opts ...Option) (*Schedule[T], error) {
	o := options{repeat: DefaultRepeat, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	if o.loc == nil {
		o.loc = time.UTC
	}

	resolved := make([]Item[T], len(items))
	copy(resolved, items)

	if !sort.SliceIsSorted(resolved, func(i, j int) bool { return resolved[i].Start < resolved[j].Start }) {
		return nil, ErrUnordered
	}

	first := resolved[0].Start
	for i := range resolved {
		it := &resolved[i]
		if it.Start < 0 || it.Start >= o.repeat {
			return nil, fmt.Errorf("entry %d: start %s outside repeat period", i, it.Start)
		}
		if i > 0 && it.Start == resolved[i-1].Start {
			return nil, ErrUnordered
		}

		var next time.Duration
		if i+1 < len(resolved) {
			next = resolved[i+1].Start
		} else {
			next = first + o.repeat
		}

		switch {
		case it.End == 0:
			it.End = next
		case it.End <= it.Start:
			// An explicit end before the start crosses midnight
			it.End += o.repeat
		}
		if it.End > next {
			return nil, fmt.Errorf("entry %d: end %s overlaps the next entry", i, it.End)
		}
	}

	return &Schedule[T]{items: resolved, repeat: o.repeat, loc: o.loc}, nil
}

// Constant returns a schedule with a single value all day
func Constant[T any](value T) *Schedule[T] {
	s, _ := New([]Item[T]{{Start: 0, Value: value}})
	return s
}

// Between returns the entries covering [a, b) in time order, clipped to
// the interval. The walk is bounded by the number of repeat periods
// the interval touches.
func (s *Schedule[T]) Between(a, b time.Time) []Entry[T] {
	if s == nil || len(s.items) == 0 || !b.After(a) {
		return nil
	}

	periodStart := s.referenceStart(a)
	periods := int(b.Sub(periodStart)/s.repeat) + 1

	var entries []Entry[T]
	for p := 0; p < periods; p++ {
		for _, it := range s.items {
			start := periodStart.Add(it.Start - s.items[0].Start)
			end := periodStart.Add(it.End - s.items[0].Start)
			if !end.After(a) {
				continue
			}
			if !start.Before(b) {
				break
			}
			if start.Before(a) {
				start = a
			}
			if end.After(b) {
				end = b
			}
			entries = append(entries, Entry[T]{Start: start, End: end, Value: it.Value})
		}
		periodStart = periodStart.Add(s.repeat)
	}
	return entries
}

// ValueAt returns the value in effect at t. It is a one nanosecond wide
// Between query; the zero value is returned if t falls in a gap.
func (s *Schedule[T]) ValueAt(t time.Time) T {
	entries := s.Between(t, t.Add(time.Nanosecond))
	if len(entries) == 0 {
		var zero T
		return zero
	}
	return entries[0].Value
}

// referenceStart returns the most recent start of the first breakpoint at or before t
func (s *Schedule[T]) referenceStart(t time.Time) time.Time {
	local := t.In(s.loc)
	y, m, d := local.Date()
	ref := time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.items[0].Start)
	for ref.After(t) {
		ref = ref.Add(-s.repeat)
	}
	for !ref.Add(s.repeat).After(t) {
		ref = ref.Add(s.repeat)
	}
	return ref
}
