// Package analytics derives occupancy statistics from the telemetry
// log, reusing the same step-function reading the alarm evaluators use:
// a row's value holds until the next row of the stream.
package analytics

import (
	"sort"
	"time"

	"shopfloor-cloud/internal/interval"
	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

// ValueSpan reports how long one value was in effect during the probe
// range. Share is relative to the covered (not requested) range.
type ValueSpan struct {
	Value   string  `json:"value"`
	Seconds float64 `json:"seconds"`
	Share   float64 `json:"share"`
}

// Utilization folds a log stream into per-value occupancy over
// [from, to). Rows before from are ignored; the last row's value
// extends to to.
func Utilization(rows []telemetry.LogRow, from, to time.Time) []ValueSpan {
	if !to.After(from) || len(rows) == 0 {
		return nil
	}
	series := make(map[string]*interval.Series)
	for i, row := range rows {
		start := row.Timestamp
		if start.Before(from) {
			start = from
		}
		end := to
		if i+1 < len(rows) {
			end = rows[i+1].Timestamp
		}
		if !start.Before(end) {
			continue
		}
		s, ok := series[row.ValueText]
		if !ok {
			s = &interval.Series{}
			series[row.ValueText] = s
		}
		s.Add(interval.NewPeriod(start, end, ""))
	}

	var covered float64
	spans := make([]ValueSpan, 0, len(series))
	for value, s := range series {
		var seconds float64
		for _, p := range s.Periods() {
			seconds += p.End.Sub(*p.Start).Seconds()
		}
		covered += seconds
		spans = append(spans, ValueSpan{Value: value, Seconds: seconds})
	}
	if covered > 0 {
		for i := range spans {
			spans[i].Share = spans[i].Seconds / covered
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Seconds != spans[j].Seconds {
			return spans[i].Seconds > spans[j].Seconds
		}
		return spans[i].Value < spans[j].Value
	})
	return spans
}
