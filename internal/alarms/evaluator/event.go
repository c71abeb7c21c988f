package evaluator

import (
	"context"
	"fmt"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/interval"
)

type eventEvaluator struct {
	cond alarms.Condition
}

func (e *eventEvaluator) Kind() alarms.ConditionKind { return alarms.KindEvent }

// Evaluate emits a period for every value segment matching the relation.
// age_min shifts the period start forward; age_max caps the period end
// relative to the segment start. Segments whose shifted start does not
// precede the capped end are dropped, so age_max < age_min never emits.
func (e *eventEvaluator) Evaluate(ctx context.Context, reader LogReader, from, to time.Time) (interval.Series, error) {
	rows, err := reader.ReadLog(ctx, e.cond.Device, e.cond.DataID, from, to)
	if err != nil {
		return interval.Series{}, err
	}

	var series interval.Series
	for _, seg := range segments(rows, to) {
		if !relText(e.cond.Rel, seg.row.ValueText, e.cond.ValueText) {
			continue
		}
		end := seg.end
		if e.cond.AgeMaxSeconds > 0 {
			capAt := seg.start.Add(time.Duration(e.cond.AgeMaxSeconds) * time.Second)
			if capAt.Before(end) {
				end = capAt
			}
		}
		start := seg.start.Add(time.Duration(e.cond.AgeMinSeconds) * time.Second)
		if !start.Before(end) {
			continue
		}
		extra := fmt.Sprintf("%s %s %s (%s %s)",
			e.cond.Device, e.cond.DataID, seg.row.ValueText, e.cond.Rel, e.cond.ValueText)
		series.Add(interval.NewPeriod(start, end, extra))
	}
	return series, nil
}
