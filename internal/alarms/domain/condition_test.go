package alarms

import (
	"testing"
	"time"
)

func validSample() Condition {
	return Condition{
		Kind:            KindSample,
		Device:          "mill",
		DataID:          "xl",
		AggregateCount:  3,
		AggregateMethod: AggregateAvg,
		Rel:             RelGreater,
		ValueNum:        50,
	}
}

func TestConditionValidate(t *testing.T) {
	if err := validSample().Validate(); err != nil {
		t.Fatalf("valid sample rejected: %v", err)
	}

	both := validSample()
	both.AggregatePeriodSeconds = 60
	if err := both.Validate(); err == nil {
		t.Fatal("sample with both period and count accepted")
	}

	neither := validSample()
	neither.AggregateCount = 0
	if err := neither.Validate(); err == nil {
		t.Fatal("sample with neither period nor count accepted")
	}

	for _, method := range []AggregateMethod{"q3rd", "q3th", "q4st", "mean"} {
		c := validSample()
		c.AggregateMethod = method
		if err := c.Validate(); err == nil {
			t.Fatalf("unknown aggregate method %q accepted", method)
		}
	}

	badRel := validSample()
	badRel.Rel = RelIn
	if err := badRel.Validate(); err == nil {
		t.Fatal("sample with set relation accepted")
	}

	event := Condition{Kind: KindEvent, Device: "robot", DataID: "state", Rel: RelEqual, ValueText: "running"}
	if err := event.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	event.Rel = RelGreater
	if err := event.Validate(); err == nil {
		t.Fatal("event with ordering relation accepted")
	}

	cond := Condition{Kind: KindCondition, Device: "lathe", DataID: "spindle", ValueText: StateAbnormal}
	if err := cond.Validate(); err != nil {
		t.Fatalf("valid condition rejected: %v", err)
	}
	cond.ValueText = "Broken"
	if err := cond.Validate(); err == nil {
		t.Fatal("condition with unknown state accepted")
	}

	noKind := Condition{Device: "a", DataID: "b"}
	if err := noKind.Validate(); err == nil {
		t.Fatal("condition without kind accepted")
	}
}

func TestConditionEqualIgnoresID(t *testing.T) {
	a := validSample()
	a.ID = 7
	b := validSample()
	b.ID = 42
	if !a.Equal(b) {
		t.Fatal("structurally equal conditions reported unequal")
	}
	b.ValueNum = 51
	if a.Equal(b) {
		t.Fatal("different thresholds reported equal")
	}
}

func TestDefValidateAndGates(t *testing.T) {
	def := Def{
		Name:       "overload",
		Conditions: []Condition{validSample()},
		SubsGroup:  "maintenance",
		Status:     StatusActive,
		LastCheck:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("valid def rejected: %v", err)
	}

	def.LastReport = def.LastCheck.Add(time.Hour)
	if err := def.Validate(); err == nil {
		t.Fatal("last_check before last_report accepted")
	}
	def.LastReport = time.Time{}

	def.Status = "paused"
	if err := def.Validate(); err == nil {
		t.Fatal("invalid status accepted")
	}
	def.Status = StatusActive

	now := def.LastCheck.Add(30 * time.Minute)
	if !def.Reportable(now) {
		t.Fatal("def without max_freq should always be reportable")
	}
	def.MaxFreqSeconds = 3600
	def.LastReport = def.LastCheck
	if def.Reportable(now) {
		t.Fatal("max_freq gate should suppress re-firing inside the gap")
	}
	if !def.Reportable(def.LastReport.Add(2 * time.Hour)) {
		t.Fatal("max_freq gate should admit firing after the gap")
	}
}
