package alarms

import "errors"

// ConditionKind discriminates the atomic condition variants.
type ConditionKind string

const (
	KindSample    ConditionKind = "sample"
	KindEvent     ConditionKind = "event"
	KindCondition ConditionKind = "condition"
)

// Relation compares an observed value against the condition target.
type Relation string

const (
	RelEqual          Relation = "="
	RelNotEqual       Relation = "!="
	RelLess           Relation = "<"
	RelLessOrEqual    Relation = "<="
	RelGreater        Relation = ">"
	RelGreaterOrEqual Relation = ">="
	RelIn             Relation = "in"
	RelNotIn          Relation = "not-in"
)

// AggregateMethod names the sample window aggregation.
type AggregateMethod string

const (
	AggregateAvg    AggregateMethod = "avg"
	AggregateMedian AggregateMethod = "median"
	AggregateQ1st   AggregateMethod = "q1st"
	AggregateQ4th   AggregateMethod = "q4th"
	AggregateSlope  AggregateMethod = "slope"
)

// Condition state values. Abnormal is a pseudo-value matching either
// Warning or Fault.
const (
	StateNormal   = "Normal"
	StateWarning  = "Warning"
	StateFault    = "Fault"
	StateAbnormal = "Abnormal"
)

// Condition is one atomic predicate over a single (device, data_id)
// stream. Exactly one kind is set; fields unused by the kind stay zero.
// Second-resolution integer fields use 0 as "unset".
type Condition struct {
	ID     int64         `json:"-"`
	Kind   ConditionKind `json:"kind"`
	Device string        `json:"device"`
	DataID string        `json:"data_id"`

	// Sample fields.
	AggregatePeriodSeconds int             `json:"aggregate_period,omitempty"`
	AggregateCount         int             `json:"aggregate_count,omitempty"`
	AggregateMethod        AggregateMethod `json:"aggregate_method,omitempty"`
	ValueNum               float64         `json:"value_num,omitempty"`

	// Event and condition fields.
	ValueText string `json:"value,omitempty"`

	// Sample and event relation.
	Rel Relation `json:"rel,omitempty"`

	// Age bounds in seconds. AgeMax applies to events only.
	AgeMinSeconds int `json:"age_min,omitempty"`
	AgeMaxSeconds int `json:"age_max,omitempty"`
}

// Validate checks the variant invariants.
func (c Condition) Validate() error {
	if c.Device == "" {
		return errors.New("alarm condition: empty device")
	}
	if c.DataID == "" {
		return errors.New("alarm condition: empty data_id")
	}
	if c.AgeMinSeconds < 0 || c.AgeMaxSeconds < 0 {
		return errors.New("alarm condition: negative age bound")
	}
	switch c.Kind {
	case KindSample:
		if (c.AggregatePeriodSeconds > 0) == (c.AggregateCount > 0) {
			return errors.New("alarm condition: exactly one of aggregate_period and aggregate_count must be set")
		}
		if !validAggregateMethod(c.AggregateMethod) {
			return errors.New("alarm condition: unknown aggregate method")
		}
		if !numericRelation(c.Rel) {
			return errors.New("alarm condition: invalid sample relation")
		}
	case KindEvent:
		if !textRelation(c.Rel) {
			return errors.New("alarm condition: invalid event relation")
		}
		if c.ValueText == "" {
			return errors.New("alarm condition: empty event value")
		}
	case KindCondition:
		switch c.ValueText {
		case StateNormal, StateWarning, StateFault, StateAbnormal:
		default:
			return errors.New("alarm condition: unknown condition state")
		}
		if c.AgeMaxSeconds != 0 {
			return errors.New("alarm condition: age_max is not valid for condition kind")
		}
	default:
		return errors.New("alarm condition: unknown kind")
	}
	return nil
}

// Equal reports structural equality ignoring the storage id. The alarm
// definition diff relies on it to preserve unchanged conditions.
func (c Condition) Equal(other Condition) bool {
	c.ID = 0
	other.ID = 0
	return c == other
}

func validAggregateMethod(m AggregateMethod) bool {
	switch m {
	case AggregateAvg, AggregateMedian, AggregateQ1st, AggregateQ4th, AggregateSlope:
		return true
	default:
		return false
	}
}

func numericRelation(rel Relation) bool {
	switch rel {
	case RelEqual, RelNotEqual, RelLess, RelLessOrEqual, RelGreater, RelGreaterOrEqual:
		return true
	default:
		return false
	}
}

func textRelation(rel Relation) bool {
	switch rel {
	case RelEqual, RelNotEqual, RelIn, RelNotIn:
		return true
	default:
		return false
	}
}
