package postgres

import "context"

// EnsureSchema creates the engine tables when missing. Statements are
// idempotent so startup can always run it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_log (
			device TEXT NOT NULL,
			data_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			sequence BIGINT NOT NULL,
			category TEXT NOT NULL,
			value_num DOUBLE PRECISION,
			value_text TEXT,
			value_extra TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_log_stream
			ON telemetry_log(device, data_id, ts, sequence)`,
		`CREATE TABLE IF NOT EXISTS alarm_defs (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			window_seconds INTEGER NOT NULL DEFAULT 0,
			max_freq_seconds INTEGER NOT NULL DEFAULT 0,
			subs_group TEXT NOT NULL,
			status TEXT NOT NULL,
			last_check TIMESTAMPTZ NOT NULL,
			last_report TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS alarm_conditions (
			id BIGSERIAL PRIMARY KEY,
			def_id BIGINT NOT NULL REFERENCES alarm_defs(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			device TEXT NOT NULL,
			data_id TEXT NOT NULL,
			aggregate_period_seconds INTEGER NOT NULL DEFAULT 0,
			aggregate_count INTEGER NOT NULL DEFAULT 0,
			aggregate_method TEXT NOT NULL DEFAULT '',
			value_num DOUBLE PRECISION NOT NULL DEFAULT 0,
			value_text TEXT NOT NULL DEFAULT '',
			rel TEXT NOT NULL DEFAULT '',
			age_min_seconds INTEGER NOT NULL DEFAULT 0,
			age_max_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarm_conditions_def
			ON alarm_conditions(def_id)`,
		`CREATE TABLE IF NOT EXISTS alarm_subscriptions (
			id TEXT PRIMARY KEY,
			"user" TEXT NOT NULL,
			method TEXT NOT NULL,
			address TEXT,
			address_name TEXT,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alarm_subscription_groups (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS alarm_subscription_group_map (
			subscription_id TEXT NOT NULL REFERENCES alarm_subscriptions(id) ON DELETE CASCADE,
			group_id BIGINT NOT NULL REFERENCES alarm_subscription_groups(id) ON DELETE CASCADE,
			PRIMARY KEY (subscription_id, group_id)
		)`,
		`CREATE TABLE IF NOT EXISTS alarm_events (
			id TEXT PRIMARY KEY,
			alarm_name TEXT NOT NULL,
			created TIMESTAMPTZ NOT NULL,
			summary TEXT NOT NULL,
			description TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarm_events_created
			ON alarm_events(created)`,
		`CREATE TABLE IF NOT EXISTS alarm_recipients (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES alarm_events(id) ON DELETE CASCADE,
			"user" TEXT NOT NULL,
			method TEXT NOT NULL,
			address TEXT,
			status TEXT NOT NULL,
			fail_count INTEGER NOT NULL DEFAULT 0,
			backoff_until TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarm_recipients_outbox
			ON alarm_recipients(status, method, backoff_until)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor TEXT,
			role TEXT,
			action TEXT NOT NULL,
			resource_type TEXT,
			resource_id TEXT,
			metadata JSONB,
			payload_digest TEXT,
			ip TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.q.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
