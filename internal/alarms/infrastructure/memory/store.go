// Package memory provides an in-memory Store used by unit tests and
// one-process evaluation without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/store"
	subscriptions "shopfloor-cloud/internal/subscriptions/domain"
	telemetry "shopfloor-cloud/internal/telemetry/domain"
)

// Store keeps all engine state in process memory. Transactions
// serialise on one mutex, which trivially satisfies the snapshot
// requirement for single-process tests.
type Store struct {
	mu sync.Mutex

	defs       map[string]*alarms.Def
	rows       []telemetry.LogRow
	events     map[string]*alarms.Event
	recipients map[string]*alarms.Recipient
	subs       []subscriptions.Subscription
	settings   map[string]string

	nextCondID int64
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		defs:       make(map[string]*alarms.Def),
		events:     make(map[string]*alarms.Event),
		recipients: make(map[string]*alarms.Recipient),
		settings:   make(map[string]string),
	}
}

// InTx runs fn under the store mutex.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(unlocked{s})
}

// unlocked exposes the store operations without re-locking; used for
// calls made inside InTx.
type unlocked struct {
	s *Store
}

// AddLogRow appends a telemetry row (test seeding).
func (s *Store) AddLogRow(row telemetry.LogRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	sort.SliceStable(s.rows, func(i, j int) bool {
		if !s.rows[i].Timestamp.Equal(s.rows[j].Timestamp) {
			return s.rows[i].Timestamp.Before(s.rows[j].Timestamp)
		}
		return s.rows[i].Sequence < s.rows[j].Sequence
	})
}

// PutSubscription stores a subscription (test seeding).
func (s *Store) PutSubscription(sub subscriptions.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subs {
		if existing.ID == sub.ID {
			s.subs[i] = sub
			return
		}
	}
	s.subs = append(s.subs, sub)
}

// SetSetting stores a settings key (test seeding).
func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

func (s *Store) GetDef(ctx context.Context, name string) (*alarms.Def, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.GetDef(ctx, name)
}

func (u unlocked) GetDef(_ context.Context, name string) (*alarms.Def, error) {
	def, ok := u.s.defs[name]
	if !ok {
		return nil, nil
	}
	copied := *def
	copied.Conditions = append([]alarms.Condition(nil), def.Conditions...)
	return &copied, nil
}

func (s *Store) ListDefs(ctx context.Context, filter store.DefFilter) ([]alarms.Def, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.ListDefs(ctx, filter)
}

func (u unlocked) ListDefs(_ context.Context, filter store.DefFilter) ([]alarms.Def, error) {
	var out []alarms.Def
	for _, def := range u.s.defs {
		if filter.Name != "" && def.Name != filter.Name {
			continue
		}
		if filter.Status != "" && def.Status != filter.Status {
			continue
		}
		copied := *def
		copied.Conditions = append([]alarms.Condition(nil), def.Conditions...)
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PutDef(ctx context.Context, def *alarms.Def) (*alarms.Def, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.PutDef(ctx, def)
}

func (u unlocked) PutDef(_ context.Context, def *alarms.Def) (*alarms.Def, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	stored := *def
	stored.Conditions = append([]alarms.Condition(nil), def.Conditions...)
	if prev, ok := u.s.defs[def.Name]; ok {
		stored.ID = prev.ID
		stored.LastReport = prev.LastReport
		// Preserve the ids of structurally unchanged conditions.
		for i := range stored.Conditions {
			for _, old := range prev.Conditions {
				if stored.Conditions[i].Equal(old) {
					stored.Conditions[i].ID = old.ID
					break
				}
			}
		}
	}
	for i := range stored.Conditions {
		if stored.Conditions[i].ID == 0 {
			u.s.nextCondID++
			stored.Conditions[i].ID = u.s.nextCondID
		}
	}
	if stored.LastCheck.IsZero() {
		stored.LastCheck = time.Now().UTC()
	}
	u.s.defs[def.Name] = &stored
	result := stored
	result.Conditions = append([]alarms.Condition(nil), stored.Conditions...)
	return &result, nil
}

func (s *Store) DeleteDef(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.DeleteDef(ctx, name)
}

func (u unlocked) DeleteDef(_ context.Context, name string) error {
	if _, ok := u.s.defs[name]; !ok {
		return alarms.ErrNotFound
	}
	delete(u.s.defs, name)
	return nil
}

func (s *Store) MarkDefChecked(ctx context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.MarkDefChecked(ctx, name, at)
}

func (u unlocked) MarkDefChecked(_ context.Context, name string, at time.Time) error {
	def, ok := u.s.defs[name]
	if !ok {
		return alarms.ErrNotFound
	}
	def.LastCheck = at.UTC()
	return nil
}

func (s *Store) MarkDefReported(ctx context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.MarkDefReported(ctx, name, at)
}

func (u unlocked) MarkDefReported(_ context.Context, name string, at time.Time) error {
	def, ok := u.s.defs[name]
	if !ok {
		return alarms.ErrNotFound
	}
	def.LastReport = at.UTC()
	return nil
}

func (s *Store) ReadLog(ctx context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.ReadLog(ctx, device, dataID, from, to)
}

func (u unlocked) ReadLog(_ context.Context, device, dataID string, from, to time.Time) ([]telemetry.LogRow, error) {
	var out []telemetry.LogRow
	for _, row := range u.s.rows {
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

func (s *Store) CreateEvent(ctx context.Context, event *alarms.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.CreateEvent(ctx, event)
}

func (u unlocked) CreateEvent(_ context.Context, event *alarms.Event) error {
	if event.ID == "" {
		event.ID = alarms.NewID()
	}
	copied := *event
	u.s.events[event.ID] = &copied
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*alarms.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.GetEvent(ctx, id)
}

func (u unlocked) GetEvent(_ context.Context, id string) (*alarms.Event, error) {
	event, ok := u.s.events[id]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]alarms.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.ListEvents(ctx, filter)
}

func (u unlocked) ListEvents(_ context.Context, filter store.EventFilter) ([]alarms.Event, error) {
	var out []alarms.Event
	for _, event := range u.s.events {
		if filter.AlarmName != "" && event.AlarmName != filter.AlarmName {
			continue
		}
		if !filter.From.IsZero() && event.Created.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !event.Created.Before(filter.To) {
			continue
		}
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CreateRecipient(ctx context.Context, recipient *alarms.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.CreateRecipient(ctx, recipient)
}

func (u unlocked) CreateRecipient(_ context.Context, recipient *alarms.Recipient) error {
	if recipient.ID == "" {
		recipient.ID = alarms.NewID()
	}
	copied := *recipient
	u.s.recipients[recipient.ID] = &copied
	return nil
}

func (s *Store) GetRecipient(ctx context.Context, id string) (*alarms.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.GetRecipient(ctx, id)
}

func (u unlocked) GetRecipient(_ context.Context, id string) (*alarms.Recipient, error) {
	recipient, ok := u.s.recipients[id]
	if !ok {
		return nil, nil
	}
	copied := *recipient
	return &copied, nil
}

func (s *Store) ListRecipients(ctx context.Context, filter store.RecipientFilter) ([]alarms.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.ListRecipients(ctx, filter)
}

func (u unlocked) ListRecipients(_ context.Context, filter store.RecipientFilter) ([]alarms.Recipient, error) {
	var out []alarms.Recipient
	for _, recipient := range u.s.recipients {
		if filter.EventID != "" && recipient.EventID != filter.EventID {
			continue
		}
		if filter.Status != "" && recipient.Status != filter.Status {
			continue
		}
		if filter.Method != "" && recipient.Method != filter.Method {
			continue
		}
		if !filter.NoBackoffAt.IsZero() && !recipient.BackoffUntil.IsZero() && recipient.BackoffUntil.After(filter.NoBackoffAt) {
			continue
		}
		out = append(out, *recipient)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateRecipientIf(ctx context.Context, id string, conditions store.RecipientConditions, change store.RecipientChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.UpdateRecipientIf(ctx, id, conditions, change)
}

func (u unlocked) UpdateRecipientIf(_ context.Context, id string, conditions store.RecipientConditions, change store.RecipientChange) (bool, error) {
	recipient, ok := u.s.recipients[id]
	if !ok {
		return false, alarms.ErrNotFound
	}
	if len(conditions.Status) > 0 && !containsString(conditions.Status, recipient.Status) {
		return false, nil
	}
	if conditions.FailCount != nil && recipient.FailCount != *conditions.FailCount {
		return false, nil
	}
	if change.Status != "" {
		recipient.Status = change.Status
	}
	if change.FailCount != nil {
		recipient.FailCount = *change.FailCount
	}
	if change.BackoffUntil != nil {
		recipient.BackoffUntil = change.BackoffUntil.UTC()
	}
	return true, nil
}

func (s *Store) ResolveGroup(ctx context.Context, group string) ([]subscriptions.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.ResolveGroup(ctx, group)
}

func (u unlocked) ResolveGroup(_ context.Context, group string) ([]subscriptions.Target, error) {
	return subscriptions.ResolveTargets(u.s.subs, group), nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return unlocked{s}.GetSetting(ctx, key)
}

func (u unlocked) GetSetting(_ context.Context, key string) (string, error) {
	return u.s.settings[key], nil
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
