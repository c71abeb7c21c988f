package evaluator

import (
	"context"
	"fmt"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/interval"
)

type conditionEvaluator struct {
	cond alarms.Condition
}

func (e *conditionEvaluator) Kind() alarms.ConditionKind { return alarms.KindCondition }

func (e *conditionEvaluator) Evaluate(ctx context.Context, reader LogReader, from, to time.Time) (interval.Series, error) {
	rows, err := reader.ReadLog(ctx, e.cond.Device, e.cond.DataID, from, to)
	if err != nil {
		return interval.Series{}, err
	}

	var series interval.Series
	for _, seg := range segments(rows, to) {
		if !matchState(e.cond.ValueText, seg.row.ValueText) {
			continue
		}
		start := seg.start.Add(time.Duration(e.cond.AgeMinSeconds) * time.Second)
		if !start.Before(seg.end) {
			continue
		}
		extra := fmt.Sprintf("%s %s %s (= %s)",
			e.cond.Device, e.cond.DataID, seg.row.ValueText, e.cond.ValueText)
		series.Add(interval.NewPeriod(start, seg.end, extra))
	}
	return series, nil
}

// matchState compares a condition state; Abnormal matches either
// Warning or Fault.
func matchState(target, observed string) bool {
	if target == alarms.StateAbnormal {
		return observed == alarms.StateWarning || observed == alarms.StateFault
	}
	return observed == target
}
