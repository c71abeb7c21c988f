package evaluator

import (
	"context"
	"testing"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/interval"
	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sec(n int) time.Time { return t0.Add(time.Duration(n) * time.Second) }

type stubReader struct {
	rows []telemetry.LogRow
}

func (s stubReader) ReadLog(_ context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error) {
	var out []telemetry.LogRow
	for _, row := range s.rows {
		if row.Device != device || row.DataID != dataID {
			continue
		}
		if row.Timestamp.Before(from) || !row.Timestamp.Before(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func textRow(device, dataID string, at time.Time, seq int64, value string) telemetry.LogRow {
	return telemetry.LogRow{
		Device: device, DataID: dataID,
		Timestamp: at, Sequence: seq,
		Category: telemetry.CategoryEvent, ValueText: value,
	}
}

func numRow(device, dataID string, at time.Time, seq int64, value float64) telemetry.LogRow {
	v := value
	return telemetry.LogRow{
		Device: device, DataID: dataID,
		Timestamp: at, Sequence: seq,
		Category: telemetry.CategorySample, ValueNum: &v,
	}
}

func robotStateRows() []telemetry.LogRow {
	return []telemetry.LogRow{
		textRow("robot", "state", sec(0), 1, "idle"),
		textRow("robot", "state", sec(10), 2, "running"),
		textRow("robot", "state", sec(25), 3, "idle"),
	}
}

func mustEvaluate(t *testing.T, cond alarms.Condition, reader LogReader, from, to time.Time) interval.Series {
	t.Helper()
	ev, err := Compile(cond)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	series, err := ev.Evaluate(context.Background(), reader, from, to)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return series
}

func assertSingle(t *testing.T, series interval.Series, start, end time.Time) interval.Period {
	t.Helper()
	if series.Len() != 1 {
		t.Fatalf("want one period, got %v", series.Periods())
	}
	p := series.Periods()[0]
	if p.Start == nil || !p.Start.Equal(start) {
		t.Fatalf("start: got %v want %v", p.Start, start)
	}
	if p.End == nil || !p.End.Equal(end) {
		t.Fatalf("end: got %v want %v", p.End, end)
	}
	return p
}

func TestEventEvaluatorSimpleMatch(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running",
	}
	series := mustEvaluate(t, cond, stubReader{rows: robotStateRows()}, sec(0), sec(30))
	p := assertSingle(t, series, sec(10), sec(25))
	if p.Extra != "robot state running (= running)" {
		t.Fatalf("extra: got %q", p.Extra)
	}
}

func TestEventEvaluatorAgeMinShift(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running", AgeMinSeconds: 10,
	}
	series := mustEvaluate(t, cond, stubReader{rows: robotStateRows()}, sec(0), sec(30))
	assertSingle(t, series, sec(20), sec(25))
}

func TestEventEvaluatorAgeMinSuppressesShortSegment(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running", AgeMinSeconds: 20,
	}
	series := mustEvaluate(t, cond, stubReader{rows: robotStateRows()}, sec(0), sec(30))
	if series.Len() != 0 {
		t.Fatalf("15s segment should be suppressed by age_min=20, got %v", series.Periods())
	}
}

func TestEventEvaluatorAgeMaxCapsEnd(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running", AgeMaxSeconds: 5,
	}
	series := mustEvaluate(t, cond, stubReader{rows: robotStateRows()}, sec(0), sec(30))
	assertSingle(t, series, sec(10), sec(15))
}

func TestEventEvaluatorAgeMaxBelowAgeMinNeverEmits(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running",
		AgeMinSeconds: 8, AgeMaxSeconds: 3,
	}
	series := mustEvaluate(t, cond, stubReader{rows: robotStateRows()}, sec(0), sec(30))
	if series.Len() != 0 {
		t.Fatalf("age_max < age_min must never emit, got %v", series.Periods())
	}
}

func TestEventEvaluatorLastSegmentExtendsToProbeEnd(t *testing.T) {
	rows := []telemetry.LogRow{
		textRow("robot", "state", sec(0), 1, "idle"),
		textRow("robot", "state", sec(10), 2, "running"),
	}
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelEqual, ValueText: "running",
	}
	series := mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(30))
	assertSingle(t, series, sec(10), sec(30))
}

func TestEventEvaluatorInRelation(t *testing.T) {
	rows := []telemetry.LogRow{
		textRow("robot", "state", sec(0), 1, "idle"),
		textRow("robot", "state", sec(10), 2, "feed_hold"),
		textRow("robot", "state", sec(20), 3, "running"),
	}
	cond := alarms.Condition{
		Kind: alarms.KindEvent, Device: "robot", DataID: "state",
		Rel: alarms.RelIn, ValueText: "feed_hold, stopped",
	}
	series := mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(30))
	assertSingle(t, series, sec(10), sec(20))

	cond.Rel = alarms.RelNotIn
	cond.ValueText = "idle, running"
	series = mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(30))
	assertSingle(t, series, sec(10), sec(20))
}

func TestConditionEvaluatorAbnormalMatchesWarningAndFault(t *testing.T) {
	rows := []telemetry.LogRow{
		{Device: "lathe", DataID: "spindle", Timestamp: sec(0), Sequence: 1, Category: telemetry.CategoryCondition, ValueText: alarms.StateNormal},
		{Device: "lathe", DataID: "spindle", Timestamp: sec(10), Sequence: 2, Category: telemetry.CategoryCondition, ValueText: alarms.StateWarning},
		{Device: "lathe", DataID: "spindle", Timestamp: sec(20), Sequence: 3, Category: telemetry.CategoryCondition, ValueText: alarms.StateFault},
		{Device: "lathe", DataID: "spindle", Timestamp: sec(30), Sequence: 4, Category: telemetry.CategoryCondition, ValueText: alarms.StateNormal},
	}
	cond := alarms.Condition{
		Kind: alarms.KindCondition, Device: "lathe", DataID: "spindle",
		ValueText: alarms.StateAbnormal,
	}
	series := mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(40))
	// Warning and Fault segments are adjacent and merge into one period.
	assertSingle(t, series, sec(10), sec(30))

	cond.ValueText = alarms.StateFault
	series = mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(40))
	assertSingle(t, series, sec(20), sec(30))
}

func TestConditionEvaluatorAgeMin(t *testing.T) {
	rows := []telemetry.LogRow{
		{Device: "lathe", DataID: "spindle", Timestamp: sec(0), Sequence: 1, Category: telemetry.CategoryCondition, ValueText: alarms.StateFault},
		{Device: "lathe", DataID: "spindle", Timestamp: sec(30), Sequence: 2, Category: telemetry.CategoryCondition, ValueText: alarms.StateNormal},
	}
	cond := alarms.Condition{
		Kind: alarms.KindCondition, Device: "lathe", DataID: "spindle",
		ValueText: alarms.StateFault, AgeMinSeconds: 10,
	}
	series := mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(40))
	assertSingle(t, series, sec(10), sec(30))
}

func millSamples() []telemetry.LogRow {
	values := []float64{10, 10, 20, 100, 100, 100}
	rows := make([]telemetry.LogRow, 0, len(values))
	for i, v := range values {
		rows = append(rows, numRow("mill", "xl", sec(i), int64(i+1), v))
	}
	return rows
}

func TestSampleEvaluatorAggregateCount(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindSample, Device: "mill", DataID: "xl",
		AggregateCount: 3, AggregateMethod: alarms.AggregateAvg,
		Rel: alarms.RelGreater, ValueNum: 50,
	}
	// Averages per full window: 13.3, 43.3, 73.3, 100 — the last two
	// trigger and their adjacent intervals merge.
	series := mustEvaluate(t, cond, stubReader{rows: millSamples()}, sec(0), sec(6))
	assertSingle(t, series, sec(4), sec(6))
}

func TestSampleEvaluatorAggregatePeriod(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindSample, Device: "mill", DataID: "xl",
		AggregatePeriodSeconds: 3, AggregateMethod: alarms.AggregateAvg,
		Rel: alarms.RelGreater, ValueNum: 50,
	}
	series := mustEvaluate(t, cond, stubReader{rows: millSamples()}, sec(0), sec(6))
	assertSingle(t, series, sec(4), sec(6))
}

func TestSampleEvaluatorSkipsNullValues(t *testing.T) {
	rows := millSamples()
	rows[3].ValueNum = nil // drop the first 100
	cond := alarms.Condition{
		Kind: alarms.KindSample, Device: "mill", DataID: "xl",
		AggregateCount: 3, AggregateMethod: alarms.AggregateAvg,
		Rel: alarms.RelGreater, ValueNum: 50,
	}
	// Windows become {10,10,20}, {10,20,100}, {20,100,100}: only the
	// last (73.3) triggers, at the final segment.
	series := mustEvaluate(t, cond, stubReader{rows: rows}, sec(0), sec(6))
	assertSingle(t, series, sec(5), sec(6))
}

func TestSampleEvaluatorEmptyLog(t *testing.T) {
	cond := alarms.Condition{
		Kind: alarms.KindSample, Device: "mill", DataID: "xl",
		AggregateCount: 3, AggregateMethod: alarms.AggregateAvg,
		Rel: alarms.RelGreater, ValueNum: 50,
	}
	series := mustEvaluate(t, cond, stubReader{}, sec(0), sec(6))
	if series.Len() != 0 {
		t.Fatalf("empty log must yield empty series, got %v", series.Periods())
	}
}

func TestAggregateMethods(t *testing.T) {
	window := func(values ...float64) []observation {
		obs := make([]observation, len(values))
		for i, v := range values {
			obs[i] = observation{ts: sec(i), value: v}
		}
		return obs
	}

	if got := aggregate(alarms.AggregateMedian, window(3, 1, 2), SlopeSeconds); got != 2 {
		t.Fatalf("median odd: got %v", got)
	}
	if got := aggregate(alarms.AggregateMedian, window(1, 2, 3, 4), SlopeSeconds); got != 2.5 {
		t.Fatalf("median even: got %v", got)
	}
	// n=6: q1st index (6-1)/5 = 1, q4th index 4.
	if got := aggregate(alarms.AggregateQ1st, window(0, 10, 20, 30, 40, 50), SlopeSeconds); got != 10 {
		t.Fatalf("q1st: got %v", got)
	}
	if got := aggregate(alarms.AggregateQ4th, window(0, 10, 20, 30, 40, 50), SlopeSeconds); got != 40 {
		t.Fatalf("q4th: got %v", got)
	}
	// n=3: q1st index 0.4 interpolates between 0 and 10.
	if got := aggregate(alarms.AggregateQ1st, window(0, 10, 20), SlopeSeconds); got != 4 {
		t.Fatalf("q1st interpolated: got %v", got)
	}
	// Values rising 2 per second.
	if got := aggregate(alarms.AggregateSlope, window(0, 2, 4, 6), SlopeSeconds); got != 2 {
		t.Fatalf("slope seconds: got %v", got)
	}
	if got := aggregate(alarms.AggregateSlope, window(0, 2, 4, 6), SlopeIndex); got != 2 {
		t.Fatalf("slope index: got %v", got)
	}
	if got := aggregate(alarms.AggregateSlope, window(5), SlopeSeconds); got != 0 {
		t.Fatalf("slope single observation: got %v", got)
	}
}
