package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/store"
)

// GetDef loads a definition with its conditions, nil when absent.
func (s *Store) GetDef(ctx context.Context, name string) (*alarms.Def, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.q.QueryRowContext(ctx, `
SELECT id, name, window_seconds, max_freq_seconds, subs_group, status, last_check, last_report
FROM alarm_defs
WHERE name = $1
LIMIT 1`, name)
	def, err := scanDef(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	def.Conditions, err = s.loadConditions(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	return def, nil
}

// ListDefs returns definitions ordered by name.
func (s *Store) ListDefs(ctx context.Context, filter store.DefFilter) ([]alarms.Def, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT id, name, window_seconds, max_freq_seconds, subs_group, status, last_check, last_report
FROM alarm_defs
WHERE ($1 = '' OR name = $1)
  AND ($2 = '' OR status = $2)
ORDER BY name ASC`, filter.Name, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Def
	for rows.Next() {
		def, err := scanDef(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Conditions, err = s.loadConditions(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// PutDef creates or replaces a definition keyed by name. Conditions
// that are structurally unchanged keep their row (and id); the rest are
// inserted and the leftovers deleted. last_report survives a replace.
func (s *Store) PutDef(ctx context.Context, def *alarms.Def) (*alarms.Def, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	stored := *def
	stored.Conditions = append([]alarms.Condition(nil), def.Conditions...)
	if stored.LastCheck.IsZero() {
		stored.LastCheck = time.Now().UTC()
	}

	prev, err := s.GetDef(ctx, def.Name)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		err := s.q.QueryRowContext(ctx, `
INSERT INTO alarm_defs (name, window_seconds, max_freq_seconds, subs_group, status, last_check, last_report)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
			stored.Name, stored.WindowSeconds, stored.MaxFreqSeconds, stored.SubsGroup,
			stored.Status, stored.LastCheck.UTC(), nullTime(stored.LastReport)).Scan(&stored.ID)
		if err != nil {
			return nil, err
		}
	} else {
		stored.ID = prev.ID
		stored.LastReport = prev.LastReport
		_, err := s.q.ExecContext(ctx, `
UPDATE alarm_defs
SET window_seconds = $2, max_freq_seconds = $3, subs_group = $4, status = $5, last_check = $6
WHERE id = $1`,
			stored.ID, stored.WindowSeconds, stored.MaxFreqSeconds, stored.SubsGroup,
			stored.Status, stored.LastCheck.UTC())
		if err != nil {
			return nil, err
		}
		for i := range stored.Conditions {
			for _, old := range prev.Conditions {
				if stored.Conditions[i].Equal(old) {
					stored.Conditions[i].ID = old.ID
					break
				}
			}
		}
	}

	kept := make(map[int64]bool, len(stored.Conditions))
	for i := range stored.Conditions {
		cond := &stored.Conditions[i]
		if cond.ID != 0 {
			kept[cond.ID] = true
			continue
		}
		err := s.q.QueryRowContext(ctx, `
INSERT INTO alarm_conditions (
	def_id, kind, device, data_id, aggregate_period_seconds, aggregate_count,
	aggregate_method, value_num, value_text, rel, age_min_seconds, age_max_seconds
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
			stored.ID, string(cond.Kind), cond.Device, cond.DataID,
			cond.AggregatePeriodSeconds, cond.AggregateCount, string(cond.AggregateMethod),
			cond.ValueNum, cond.ValueText, string(cond.Rel),
			cond.AgeMinSeconds, cond.AgeMaxSeconds).Scan(&cond.ID)
		if err != nil {
			return nil, err
		}
		kept[cond.ID] = true
	}
	if prev != nil {
		for _, old := range prev.Conditions {
			if !kept[old.ID] {
				if _, err := s.q.ExecContext(ctx,
					`DELETE FROM alarm_conditions WHERE id = $1`, old.ID); err != nil {
					return nil, err
				}
			}
		}
	}
	return &stored, nil
}

// DeleteDef removes a definition and its conditions.
func (s *Store) DeleteDef(ctx context.Context, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM alarm_defs WHERE name = $1`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

// MarkDefChecked advances last_check.
func (s *Store) MarkDefChecked(ctx context.Context, name string, at time.Time) error {
	return s.markDef(ctx, `UPDATE alarm_defs SET last_check = $2 WHERE name = $1`, name, at)
}

// MarkDefReported advances last_report.
func (s *Store) MarkDefReported(ctx context.Context, name string, at time.Time) error {
	return s.markDef(ctx, `UPDATE alarm_defs SET last_report = $2 WHERE name = $1`, name, at)
}

func (s *Store) markDef(ctx context.Context, query, name string, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, query, name, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alarms.ErrNotFound
	}
	return nil
}

func (s *Store) loadConditions(ctx context.Context, defID int64) ([]alarms.Condition, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, kind, device, data_id, aggregate_period_seconds, aggregate_count,
	aggregate_method, value_num, value_text, rel, age_min_seconds, age_max_seconds
FROM alarm_conditions
WHERE def_id = $1
ORDER BY id ASC`, defID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Condition
	for rows.Next() {
		var cond alarms.Condition
		var kind, method, rel string
		if err := rows.Scan(
			&cond.ID,
			&kind,
			&cond.Device,
			&cond.DataID,
			&cond.AggregatePeriodSeconds,
			&cond.AggregateCount,
			&method,
			&cond.ValueNum,
			&cond.ValueText,
			&rel,
			&cond.AgeMinSeconds,
			&cond.AgeMaxSeconds,
		); err != nil {
			return nil, err
		}
		cond.Kind = alarms.ConditionKind(kind)
		cond.AggregateMethod = alarms.AggregateMethod(method)
		cond.Rel = alarms.Relation(rel)
		result = append(result, cond)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDef(row rowScanner) (*alarms.Def, error) {
	var def alarms.Def
	var lastReport sql.NullTime
	if err := row.Scan(
		&def.ID,
		&def.Name,
		&def.WindowSeconds,
		&def.MaxFreqSeconds,
		&def.SubsGroup,
		&def.Status,
		&def.LastCheck,
		&lastReport,
	); err != nil {
		return nil, err
	}
	def.LastCheck = def.LastCheck.UTC()
	if lastReport.Valid {
		def.LastReport = lastReport.Time.UTC()
	}
	return &def, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
