package interval

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func bounded(startSec, endSec int) Period {
	return NewPeriod(at(startSec), at(endSec), "")
}

func assertPeriods(t *testing.T, s Series, want [][2]int) {
	t.Helper()
	got := s.Periods()
	if len(got) != len(want) {
		t.Fatalf("period count: got %d want %d (%v)", len(got), len(want), got)
	}
	for i, bounds := range want {
		p := got[i]
		if p.Start == nil || p.End == nil {
			t.Fatalf("period %d unexpectedly unbounded", i)
		}
		if !p.Start.Equal(at(bounds[0])) || !p.End.Equal(at(bounds[1])) {
			t.Fatalf("period %d: got [%v, %v) want [%v, %v)", i, p.Start, p.End, at(bounds[0]), at(bounds[1]))
		}
	}
}

func TestAddKeepsDisjointSorted(t *testing.T) {
	var s Series
	s.Add(bounded(20, 30))
	s.Add(bounded(0, 5))
	s.Add(bounded(40, 50))
	assertPeriods(t, s, [][2]int{{0, 5}, {20, 30}, {40, 50}})

	for i := 1; i < len(s.Periods()); i++ {
		prev := s.Periods()[i-1]
		cur := s.Periods()[i]
		if !prev.End.Before(*cur.Start) {
			t.Fatalf("periods %d and %d overlap or touch", i-1, i)
		}
	}
}

func TestAddMergesOverlap(t *testing.T) {
	var s Series
	s.Add(bounded(0, 10))
	s.Add(bounded(5, 15))
	assertPeriods(t, s, [][2]int{{0, 15}})
}

func TestAddMergesAdjacent(t *testing.T) {
	var s Series
	s.Add(bounded(0, 10))
	s.Add(bounded(10, 20))
	assertPeriods(t, s, [][2]int{{0, 20}})
}

func TestAddAbsorbsRun(t *testing.T) {
	var s Series
	s.Add(bounded(0, 5))
	s.Add(bounded(10, 15))
	s.Add(bounded(20, 25))
	s.Add(bounded(4, 21))
	assertPeriods(t, s, [][2]int{{0, 25}})
}

func TestAddIgnoresEmpty(t *testing.T) {
	var s Series
	s.Add(bounded(10, 10))
	s.Add(bounded(10, 5))
	if s.Len() != 0 {
		t.Fatalf("empty periods stored: %v", s.Periods())
	}
}

func TestAddOpenEndedAbsorbsFollowing(t *testing.T) {
	var s Series
	s.Add(bounded(0, 5))
	s.Add(bounded(10, 15))
	s.Add(From(at(3), ""))
	if s.Len() != 1 {
		t.Fatalf("want single merged period, got %v", s.Periods())
	}
	p := s.Periods()[0]
	if p.End != nil {
		t.Fatalf("merged period should be open-ended, got end %v", p.End)
	}
	if !p.Start.Equal(at(0)) {
		t.Fatalf("merged start: got %v want %v", p.Start, at(0))
	}
}

func TestIntersectBasic(t *testing.T) {
	a := NewSeries(bounded(0, 10), bounded(20, 30))
	b := NewSeries(bounded(5, 25))
	got := Intersect(a, b, nil)
	assertPeriods(t, got, [][2]int{{5, 10}, {20, 25}})
}

func TestIntersectSymmetric(t *testing.T) {
	a := NewSeries(bounded(0, 10), bounded(15, 30), bounded(40, 45))
	b := NewSeries(bounded(5, 18), bounded(25, 42))
	ab := Intersect(a, b, nil)
	ba := Intersect(b, a, nil)
	if ab.Len() != ba.Len() {
		t.Fatalf("intersection not symmetric: %v vs %v", ab.Periods(), ba.Periods())
	}
	for i := range ab.Periods() {
		x, y := ab.Periods()[i], ba.Periods()[i]
		if !x.Start.Equal(*y.Start) || !x.End.Equal(*y.End) {
			t.Fatalf("period %d differs: %v vs %v", i, x, y)
		}
	}
}

func TestIntersectUniversalIdentity(t *testing.T) {
	a := NewSeries(bounded(0, 10), bounded(20, 30))
	got := Intersect(a, Universal(), nil)
	assertPeriods(t, got, [][2]int{{0, 10}, {20, 30}})
}

func TestIntersectEmpty(t *testing.T) {
	a := NewSeries(bounded(0, 10))
	got := Intersect(a, Series{}, nil)
	if got.Len() != 0 {
		t.Fatalf("intersection with empty should be empty, got %v", got.Periods())
	}
}

func TestIntersectDiscardsZeroLength(t *testing.T) {
	a := NewSeries(bounded(0, 10))
	b := NewSeries(bounded(10, 20))
	got := Intersect(a, b, nil)
	if got.Len() != 0 {
		t.Fatalf("touching periods should not intersect, got %v", got.Periods())
	}
}

func TestIntersectPreservesOpenRight(t *testing.T) {
	a := NewSeries(From(at(0), ""))
	b := NewSeries(From(at(5), ""))
	got := Intersect(a, b, nil)
	if got.Len() != 1 {
		t.Fatalf("want one period, got %v", got.Periods())
	}
	p := got.Periods()[0]
	if p.End != nil || !p.Start.Equal(at(5)) {
		t.Fatalf("want [%v, +inf), got %v", at(5), p)
	}
}

func TestIntersectMergesExtra(t *testing.T) {
	a := NewSeries(NewPeriod(at(0), at(10), "left"))
	b := NewSeries(NewPeriod(at(5), at(15), "right"))
	got := Intersect(a, b, nil)
	if got.Len() != 1 {
		t.Fatalf("want one period, got %v", got.Periods())
	}
	if got.Periods()[0].Extra != "left\nright" {
		t.Fatalf("extra: got %q", got.Periods()[0].Extra)
	}
}

func TestPeriodContains(t *testing.T) {
	p := bounded(0, 10)
	cases := []struct {
		at   time.Time
		want bool
	}{
		{at(0), true},
		{at(9), true},
		{at(10), false},
		{at(-1), false},
	}
	for _, tc := range cases {
		if got := p.Contains(tc.at); got != tc.want {
			t.Fatalf("Contains(%v): got %v want %v", tc.at, got, tc.want)
		}
	}
	open := From(at(5), "")
	if !open.Contains(at(1000)) {
		t.Fatal("open-ended period should contain far future")
	}
	if open.Contains(at(4)) {
		t.Fatal("open-ended period should not contain instants before start")
	}
}
