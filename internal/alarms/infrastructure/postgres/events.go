package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/store"
)

// CreateEvent inserts an alarm event, assigning an id when missing.
func (s *Store) CreateEvent(ctx context.Context, event *alarms.Event) error {
	if err := s.ready(); err != nil {
		return err
	}
	if event == nil {
		return errors.New("postgres store: nil event")
	}
	if event.ID == "" {
		event.ID = alarms.NewID()
	}
	if event.Created.IsZero() {
		event.Created = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO alarm_events (id, alarm_name, created, summary, description)
VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AlarmName, event.Created.UTC(), event.Summary, event.Description)
	return err
}

// GetEvent loads an event by id, nil when absent.
func (s *Store) GetEvent(ctx context.Context, id string) (*alarms.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.q.QueryRowContext(ctx, `
SELECT id, alarm_name, created, summary, description
FROM alarm_events
WHERE id = $1
LIMIT 1`, id)
	var event alarms.Event
	if err := row.Scan(&event.ID, &event.AlarmName, &event.Created, &event.Summary, &event.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	event.Created = event.Created.UTC()
	return &event, nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]alarms.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `
SELECT id, alarm_name, created, summary, description
FROM alarm_events
WHERE ($1 = '' OR alarm_name = $1)
  AND ($2::timestamptz IS NULL OR created >= $2)
  AND ($3::timestamptz IS NULL OR created < $3)
ORDER BY created DESC, id ASC`
	args := []any{filter.AlarmName, nullTime(filter.From), nullTime(filter.To)}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Event
	for rows.Next() {
		var event alarms.Event
		if err := rows.Scan(&event.ID, &event.AlarmName, &event.Created, &event.Summary, &event.Description); err != nil {
			return nil, err
		}
		event.Created = event.Created.UTC()
		result = append(result, event)
	}
	return result, rows.Err()
}

// CreateRecipient inserts a delivery obligation in outbox state.
func (s *Store) CreateRecipient(ctx context.Context, recipient *alarms.Recipient) error {
	if err := s.ready(); err != nil {
		return err
	}
	if recipient == nil {
		return errors.New("postgres store: nil recipient")
	}
	if recipient.ID == "" {
		recipient.ID = alarms.NewID()
	}
	if recipient.Status == "" {
		recipient.Status = alarms.RecipientOutbox
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO alarm_recipients (id, event_id, "user", method, address, status, fail_count, backoff_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		recipient.ID, recipient.EventID, recipient.User, recipient.Method, recipient.Address,
		recipient.Status, recipient.FailCount, nullTime(recipient.BackoffUntil))
	return err
}

// GetRecipient loads a recipient by id, nil when absent.
func (s *Store) GetRecipient(ctx context.Context, id string) (*alarms.Recipient, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	row := s.q.QueryRowContext(ctx, `
SELECT id, event_id, "user", method, address, status, fail_count, backoff_until
FROM alarm_recipients
WHERE id = $1
LIMIT 1`, id)
	recipient, err := scanRecipient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return recipient, nil
}

// ListRecipients returns recipients ordered by event creation time then
// id, so older obligations are delivered first.
func (s *Store) ListRecipients(ctx context.Context, filter store.RecipientFilter) ([]alarms.Recipient, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query := `
SELECT r.id, r.event_id, r."user", r.method, r.address, r.status, r.fail_count, r.backoff_until
FROM alarm_recipients r
JOIN alarm_events e ON e.id = r.event_id
WHERE ($1 = '' OR r.event_id = $1)
  AND ($2 = '' OR r.status = $2)
  AND ($3 = '' OR r.method = $3)
  AND ($4::timestamptz IS NULL OR r.backoff_until IS NULL OR r.backoff_until <= $4)
ORDER BY e.created ASC, r.id ASC`
	args := []any{filter.EventID, filter.Status, filter.Method, nullTime(filter.NoBackoffAt)}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *recipient)
	}
	return result, rows.Err()
}

// UpdateRecipientIf applies change iff every condition matches the
// current row. The precondition lives in the UPDATE's WHERE clause, so
// two workers racing on the same row resolve inside Postgres: exactly
// one sees changed=true.
func (s *Store) UpdateRecipientIf(ctx context.Context, id string, conditions store.RecipientConditions, change store.RecipientChange) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	set := make([]string, 0, 3)
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if change.Status != "" {
		set = append(set, "status = "+arg(change.Status))
	}
	if change.FailCount != nil {
		set = append(set, "fail_count = "+arg(*change.FailCount))
	}
	if change.BackoffUntil != nil {
		set = append(set, "backoff_until = "+arg(change.BackoffUntil.UTC()))
	}
	if len(set) == 0 {
		return false, errors.New("postgres store: empty recipient change")
	}
	where := []string{"id = $1"}
	if len(conditions.Status) > 0 {
		marks := make([]string, len(conditions.Status))
		for i, status := range conditions.Status {
			marks[i] = arg(status)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if conditions.FailCount != nil {
		where = append(where, "fail_count = "+arg(*conditions.FailCount))
	}
	query := "UPDATE alarm_recipients SET " + strings.Join(set, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		exists, err := s.GetRecipient(ctx, id)
		if err != nil {
			return false, err
		}
		if exists == nil {
			return false, alarms.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func scanRecipient(row rowScanner) (*alarms.Recipient, error) {
	var recipient alarms.Recipient
	var address sql.NullString
	var backoff sql.NullTime
	if err := row.Scan(
		&recipient.ID,
		&recipient.EventID,
		&recipient.User,
		&recipient.Method,
		&address,
		&recipient.Status,
		&recipient.FailCount,
		&backoff,
	); err != nil {
		return nil, err
	}
	recipient.Address = address.String
	if backoff.Valid {
		recipient.BackoffUntil = backoff.Time.UTC()
	}
	return &recipient, nil
}
