// Package interval provides the half-open time period and the ordered
// disjoint series used to combine alarm condition results.
package interval

import (
	"time"
)

// Period is a half-open time range [Start, End). A nil Start means
// unbounded past, a nil End unbounded future. Extra carries opaque text
// describing what held during the period; it is composed on intersection
// and ends up in alarm event descriptions.
type Period struct {
	Start *time.Time
	End   *time.Time
	Extra string
}

// NewPeriod builds a bounded period.
func NewPeriod(start, end time.Time, extra string) Period {
	s := start.UTC()
	e := end.UTC()
	return Period{Start: &s, End: &e, Extra: extra}
}

// From builds a period open to the right.
func From(start time.Time, extra string) Period {
	s := start.UTC()
	return Period{Start: &s, Extra: extra}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if p.Start != nil && t.Before(*p.Start) {
		return false
	}
	if p.End != nil && !t.Before(*p.End) {
		return false
	}
	return true
}

// Empty reports whether the period covers no instant.
func (p Period) Empty() bool {
	if p.Start == nil || p.End == nil {
		return false
	}
	return !p.Start.Before(*p.End)
}

// earlierStart returns the earlier of two start bounds, nil winning.
func earlierStart(a, b *time.Time) *time.Time {
	if a == nil || b == nil {
		return nil
	}
	if a.Before(*b) {
		return a
	}
	return b
}

// laterEnd returns the later of two end bounds, nil winning.
func laterEnd(a, b *time.Time) *time.Time {
	if a == nil || b == nil {
		return nil
	}
	if a.After(*b) {
		return a
	}
	return b
}

// laterStart returns the later of two start bounds, nil losing.
func laterStart(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.After(*b) {
		return a
	}
	return b
}

// earlierEnd returns the earlier of two end bounds, nil losing.
func earlierEnd(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Before(*b) {
		return a
	}
	return b
}
