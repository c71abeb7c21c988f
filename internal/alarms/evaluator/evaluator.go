// Package evaluator compiles atomic alarm conditions into functions
// that turn a windowed slice of the telemetry log into an interval
// series during which the predicate holds.
package evaluator

import (
	"context"
	"errors"
	"strings"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/interval"
	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

// LogReader returns the ordered rows of one (device, data_id) stream
// inside [from, to).
type LogReader interface {
	ReadLog(ctx context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error)
}

// Evaluator computes the series of periods during which one atomic
// condition holds.
type Evaluator interface {
	Kind() alarms.ConditionKind
	Evaluate(ctx context.Context, reader LogReader, from, to time.Time) (interval.Series, error)
}

// SlopeAxis selects the x axis for the slope aggregate.
type SlopeAxis string

const (
	SlopeSeconds SlopeAxis = "seconds"
	SlopeIndex   SlopeAxis = "index"
)

// Option customizes compilation.
type Option func(*options)

type options struct {
	slopeAxis SlopeAxis
}

// WithSlopeAxis overrides the slope x axis (default elapsed seconds).
func WithSlopeAxis(axis SlopeAxis) Option {
	return func(o *options) {
		if axis == SlopeSeconds || axis == SlopeIndex {
			o.slopeAxis = axis
		}
	}
}

// Compile builds the evaluator for a validated condition.
func Compile(cond alarms.Condition, opts ...Option) (Evaluator, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	o := options{slopeAxis: SlopeSeconds}
	for _, opt := range opts {
		opt(&o)
	}
	switch cond.Kind {
	case alarms.KindEvent:
		return &eventEvaluator{cond: cond}, nil
	case alarms.KindCondition:
		return &conditionEvaluator{cond: cond}, nil
	case alarms.KindSample:
		return &sampleEvaluator{cond: cond, slopeAxis: o.slopeAxis}, nil
	default:
		return nil, errors.New("evaluator: unknown condition kind")
	}
}

// segment is one row with its validity interval. The last row of a
// slice stays valid until the probe upper bound.
type segment struct {
	start time.Time
	end   time.Time
	row   telemetry.LogRow
}

func segments(rows []telemetry.LogRow, to time.Time) []segment {
	segs := make([]segment, 0, len(rows))
	for i, row := range rows {
		end := to
		if i+1 < len(rows) {
			end = rows[i+1].Timestamp
		}
		if !row.Timestamp.Before(end) {
			continue
		}
		segs = append(segs, segment{start: row.Timestamp, end: end, row: row})
	}
	return segs
}

func relText(rel alarms.Relation, observed, target string) bool {
	switch rel {
	case alarms.RelEqual:
		return observed == target
	case alarms.RelNotEqual:
		return observed != target
	case alarms.RelIn:
		return inList(observed, target)
	case alarms.RelNotIn:
		return !inList(observed, target)
	default:
		return false
	}
}

func inList(observed, list string) bool {
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == observed {
			return true
		}
	}
	return false
}

func relNum(rel alarms.Relation, observed, target float64) bool {
	switch rel {
	case alarms.RelEqual:
		return observed == target
	case alarms.RelNotEqual:
		return observed != target
	case alarms.RelLess:
		return observed < target
	case alarms.RelLessOrEqual:
		return observed <= target
	case alarms.RelGreater:
		return observed > target
	case alarms.RelGreaterOrEqual:
		return observed >= target
	default:
		return false
	}
}
