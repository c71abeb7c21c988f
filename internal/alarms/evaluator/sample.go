package evaluator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/interval"
)

type sampleEvaluator struct {
	cond      alarms.Condition
	slopeAxis SlopeAxis
}

func (e *sampleEvaluator) Kind() alarms.ConditionKind { return alarms.KindSample }

type observation struct {
	ts    time.Time
	value float64
}

// Evaluate walks the value segments in order, maintaining a sliding
// window of recent numeric observations. Rows without a numeric value
// are skipped before aggregation.
func (e *sampleEvaluator) Evaluate(ctx context.Context, reader LogReader, from, to time.Time) (interval.Series, error) {
	rows, err := reader.ReadLog(ctx, e.cond.Device, e.cond.DataID, from, to)
	if err != nil {
		return interval.Series{}, err
	}

	var series interval.Series
	var window []observation

	period := time.Duration(e.cond.AggregatePeriodSeconds) * time.Second
	for _, seg := range segments(rows, to) {
		if seg.row.ValueNum == nil {
			continue
		}
		if e.cond.AggregateCount > 0 {
			window = append(window, observation{ts: seg.start, value: *seg.row.ValueNum})
			if len(window) < e.cond.AggregateCount {
				continue
			}
			e.check(&series, window, seg)
			window = window[1:]
			continue
		}

		// Period window: evict entries older than seg.end - period,
		// then emit only once the window spans the full period.
		cutoff := seg.end.Add(-period)
		for len(window) > 0 && window[0].ts.Before(cutoff) {
			window = window[1:]
		}
		window = append(window, observation{ts: seg.start, value: *seg.row.ValueNum})
		if seg.end.Sub(window[0].ts) >= period {
			e.check(&series, window, seg)
		}
	}
	return series, nil
}

func (e *sampleEvaluator) check(series *interval.Series, window []observation, seg segment) {
	if len(window) == 0 {
		return
	}
	agg := aggregate(e.cond.AggregateMethod, window, e.slopeAxis)
	if !relNum(e.cond.Rel, agg, e.cond.ValueNum) {
		return
	}
	extra := fmt.Sprintf("%s %s %s (%s %s)",
		e.cond.Device, e.cond.DataID,
		strconv.FormatFloat(agg, 'g', -1, 64),
		e.cond.Rel,
		strconv.FormatFloat(e.cond.ValueNum, 'g', -1, 64))
	series.Add(interval.NewPeriod(seg.start, seg.end, extra))
}
