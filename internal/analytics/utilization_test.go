package analytics

import (
	"testing"
	"time"

	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

func TestUtilization(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	at := func(n int) time.Time { return base.Add(time.Duration(n) * time.Second) }
	row := func(n int, value string) telemetry.LogRow {
		return telemetry.LogRow{
			Device: "lathe", DataID: "state",
			Timestamp: at(n), Sequence: int64(n),
			Category: telemetry.CategoryEvent, ValueText: value,
		}
	}

	rows := []telemetry.LogRow{
		row(0, "running"),
		row(60, "idle"),
		row(90, "running"),
		row(100, "fault"),
	}
	spans := Utilization(rows, at(0), at(120))
	if len(spans) != 3 {
		t.Fatalf("want 3 values, got %+v", spans)
	}
	// running: [0,60) + [90,100) = 70s, idle: 30s, fault: 20s.
	if spans[0].Value != "running" || spans[0].Seconds != 70 {
		t.Fatalf("running span: %+v", spans[0])
	}
	if spans[1].Value != "idle" || spans[1].Seconds != 30 {
		t.Fatalf("idle span: %+v", spans[1])
	}
	if spans[2].Value != "fault" || spans[2].Seconds != 20 {
		t.Fatalf("fault span: %+v", spans[2])
	}
	var total float64
	for _, span := range spans {
		total += span.Share
	}
	if total < 0.999 || total > 1.001 {
		t.Fatalf("shares must sum to 1, got %f", total)
	}
}

func TestUtilizationClampsToRange(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := []telemetry.LogRow{{
		Device: "lathe", DataID: "state",
		Timestamp: base.Add(-time.Hour), Sequence: 1,
		Category: telemetry.CategoryEvent, ValueText: "running",
	}}
	spans := Utilization(rows, base, base.Add(10*time.Minute))
	if len(spans) != 1 || spans[0].Seconds != 600 {
		t.Fatalf("pre-range row must clamp to the probe window: %+v", spans)
	}
	if Utilization(nil, base, base.Add(time.Minute)) != nil {
		t.Fatalf("no rows should yield nil")
	}
}
