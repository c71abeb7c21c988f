// Package store defines the transactional store contract shared by the
// orchestrator, the delivery workers and the HTTP surface. The engine
// only needs a transactional ordered store with range scans; Postgres
// and an in-memory implementation both satisfy it.
package store

import (
	"context"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	subscriptions "shopfloor-cloud/internal/subscriptions/domain"
	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

// DefFilter narrows ListDefs.
type DefFilter struct {
	Name   string
	Status string
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	AlarmName string
	From      time.Time
	To        time.Time
	Limit     int
}

// RecipientFilter narrows ListRecipients. A non-zero NoBackoffAt
// excludes rows whose backoff_until lies after that instant.
type RecipientFilter struct {
	EventID     string
	Status      string
	Method      string
	NoBackoffAt time.Time
	Limit       int
}

// RecipientConditions are the preconditions of a conditional update.
type RecipientConditions struct {
	Status    []string
	FailCount *int
}

// RecipientChange is the mutation applied when all conditions hold.
type RecipientChange struct {
	Status       string
	FailCount    *int
	BackoffUntil *time.Time
}

// Store aggregates the persistence operations of the alarm engine.
// Within InTx every method observes one snapshot.
type Store interface {
	// Alarm definitions. PutDef diffs the condition set against the
	// stored definition, preserving unchanged conditions, and resets
	// last_check. The store is the sole mutator of last_report.
	GetDef(ctx context.Context, name string) (*alarms.Def, error)
	ListDefs(ctx context.Context, filter DefFilter) ([]alarms.Def, error)
	PutDef(ctx context.Context, def *alarms.Def) (*alarms.Def, error)
	DeleteDef(ctx context.Context, name string) error
	MarkDefChecked(ctx context.Context, name string, at time.Time) error
	MarkDefReported(ctx context.Context, name string, at time.Time) error

	// Telemetry log, ordered by (timestamp, sequence).
	ReadLog(ctx context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error)

	// Alarm events and recipients.
	CreateEvent(ctx context.Context, event *alarms.Event) error
	GetEvent(ctx context.Context, id string) (*alarms.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]alarms.Event, error)
	CreateRecipient(ctx context.Context, recipient *alarms.Recipient) error
	GetRecipient(ctx context.Context, id string) (*alarms.Recipient, error)
	ListRecipients(ctx context.Context, filter RecipientFilter) ([]alarms.Recipient, error)
	// UpdateRecipientIf applies change iff all conditions match the
	// current row; changed=false with a nil error means another worker
	// already claimed the row.
	UpdateRecipientIf(ctx context.Context, id string, conditions RecipientConditions, change RecipientChange) (bool, error)

	// Subscription resolution at evaluation time.
	ResolveGroup(ctx context.Context, group string) ([]subscriptions.Target, error)

	// Settings key/value store; missing keys return "" without error.
	GetSetting(ctx context.Context, key string) (string, error)
}

// TxRunner executes fn inside one repeatable-read transaction; the
// whole body commits or aborts together.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Store) error) error
}
