package interval

import (
	"sort"
	"strings"
	"time"
)

// Series is an ordered collection of pairwise disjoint, non-empty
// periods. The zero value is an empty series ready to use.
type Series struct {
	periods []Period
}

// NewSeries builds a series from the given periods, merging as needed.
func NewSeries(periods ...Period) Series {
	var s Series
	for _, p := range periods {
		s.Add(p)
	}
	return s
}

// Universal returns the series covering all time.
func Universal() Series {
	return Series{periods: []Period{{}}}
}

// Len returns the number of stored periods.
func (s Series) Len() int { return len(s.periods) }

// Periods returns the stored periods in order. The slice is shared;
// callers must not mutate it.
func (s Series) Periods() []Period { return s.periods }

// First returns the earliest period; ok is false when the series is empty.
func (s Series) First() (Period, bool) {
	if len(s.periods) == 0 {
		return Period{}, false
	}
	return s.periods[0], true
}

// Last returns the latest period; ok is false when the series is empty.
func (s Series) Last() (Period, bool) {
	if len(s.periods) == 0 {
		return Period{}, false
	}
	return s.periods[len(s.periods)-1], true
}

// Contains reports whether any stored period contains t.
func (s Series) Contains(t time.Time) bool {
	for _, p := range s.periods {
		if p.Contains(t) {
			return true
		}
	}
	return false
}

// Add inserts p, absorbing every stored period it overlaps or touches.
// Empty periods are ignored.
func (s *Series) Add(p Period) {
	if p.Empty() {
		return
	}
	// First stored period whose end reaches p.Start.
	idx := sort.Search(len(s.periods), func(i int) bool {
		end := s.periods[i].End
		if end == nil || p.Start == nil {
			return true
		}
		return !end.Before(*p.Start)
	})

	// Absorb the run of stored periods starting no later than p.End.
	j := idx
	extras := []string{}
	for j < len(s.periods) {
		stored := s.periods[j]
		if p.End != nil && stored.Start != nil && stored.Start.After(*p.End) {
			break
		}
		p.Start = earlierStart(p.Start, stored.Start)
		p.End = laterEnd(p.End, stored.End)
		if stored.Extra != "" && stored.Extra != p.Extra {
			extras = append(extras, stored.Extra)
		}
		j++
	}
	if len(extras) > 0 {
		if p.Extra != "" {
			extras = append(extras, p.Extra)
		}
		p.Extra = strings.Join(extras, "\n")
	}

	merged := make([]Period, 0, len(s.periods)-(j-idx)+1)
	merged = append(merged, s.periods[:idx]...)
	merged = append(merged, p)
	merged = append(merged, s.periods[j:]...)
	s.periods = merged
}

// MergeExtra composes the extra texts of two intersected periods.
type MergeExtra func(a, b string) string

// JoinExtra is the default composition: newline-join, skipping empties.
func JoinExtra(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}

// Intersect returns the pointwise intersection of a and b. Zero-length
// result intervals are discarded; an unbounded interval on the far right
// is preserved. merge composes the extra texts and defaults to JoinExtra.
func Intersect(a, b Series, merge MergeExtra) Series {
	if merge == nil {
		merge = JoinExtra
	}
	var out Series
	i, j := 0, 0
	for i < len(a.periods) && j < len(b.periods) {
		pa := a.periods[i]
		pb := b.periods[j]
		start := laterStart(pa.Start, pb.Start)
		end := earlierEnd(pa.End, pb.End)
		if end == nil || start == nil || start.Before(*end) {
			out.periods = append(out.periods, Period{
				Start: start,
				End:   end,
				Extra: merge(pa.Extra, pb.Extra),
			})
		}
		// Advance the cursor whose period closes first.
		switch {
		case pa.End == nil && pb.End == nil:
			return out
		case pa.End == nil:
			j++
		case pb.End == nil:
			i++
		case pa.End.After(*pb.End):
			j++
		case pb.End.After(*pa.End):
			i++
		default:
			i++
			j++
		}
	}
	return out
}
