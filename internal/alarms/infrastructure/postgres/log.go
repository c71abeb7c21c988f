package postgres

import (
	"context"
	"database/sql"
	"time"

	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

// ReadLog returns the log rows of one (device, data_id) stream with
// timestamp in [from, to), ordered by (timestamp, sequence).
func (s *Store) ReadLog(ctx context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT device, data_id, ts, sequence, category, value_num, value_text, value_extra
FROM telemetry_log
WHERE device = $1 AND data_id = $2 AND ts >= $3 AND ts < $4
ORDER BY ts ASC, sequence ASC`, device, dataID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.LogRow
	for rows.Next() {
		var row telemetry.LogRow
		var valueNum sql.NullFloat64
		var valueText, valueExtra sql.NullString
		if err := rows.Scan(
			&row.Device,
			&row.DataID,
			&row.Timestamp,
			&row.Sequence,
			&row.Category,
			&valueNum,
			&valueText,
			&valueExtra,
		); err != nil {
			return nil, err
		}
		row.Timestamp = row.Timestamp.UTC()
		if valueNum.Valid {
			v := valueNum.Float64
			row.ValueNum = &v
		}
		row.ValueText = valueText.String
		row.ValueExtra = valueExtra.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
