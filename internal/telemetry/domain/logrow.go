package telemetry

import "time"

// Log row categories as reported by the machine-tool controllers.
const (
	CategorySample    = "SAMPLE"
	CategoryEvent     = "EVENT"
	CategoryCondition = "CONDITION"
)

// LogRow is one appended measurement, event or condition observation.
// Rows of the same (device, data_id) stream are ordered by
// (timestamp, sequence); each row's value is valid until the next row
// of the same stream.
type LogRow struct {
	Device     string    `json:"device"`
	DataID     string    `json:"data_id"`
	Timestamp  time.Time `json:"timestamp"`
	Sequence   int64     `json:"sequence"`
	Category   string    `json:"category"`
	ValueNum   *float64  `json:"value_num,omitempty"`
	ValueText  string    `json:"value,omitempty"`
	ValueExtra string    `json:"value_extra,omitempty"`
}
