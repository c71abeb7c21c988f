package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/infrastructure/memory"
	"shopfloor-cloud/internal/alarms/store"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type stubChannel struct {
	method  string
	deliver func(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error
	calls   int
}

func (s *stubChannel) Method() string { return s.method }

func (s *stubChannel) Deliver(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error {
	s.calls++
	if s.deliver == nil {
		return nil
	}
	return s.deliver(ctx, recipient, event)
}

func seedOutbox(t *testing.T, st *memory.Store, method string) *alarms.Recipient {
	t.Helper()
	ctx := context.Background()
	event := &alarms.Event{AlarmName: "spindle-hot", Summary: "spindle-hot   ...", Description: "details"}
	if err := st.CreateEvent(ctx, event); err != nil {
		t.Fatalf("create event: %v", err)
	}
	recipient := &alarms.Recipient{
		EventID: event.ID,
		User:    "alice",
		Method:  method,
		Address: "alice@example.com",
		Status:  alarms.RecipientOutbox,
	}
	if err := st.CreateRecipient(ctx, recipient); err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	return recipient
}

func getRecipient(t *testing.T, st *memory.Store, id string) alarms.Recipient {
	t.Helper()
	recipient, err := st.GetRecipient(context.Background(), id)
	if err != nil || recipient == nil {
		t.Fatalf("get recipient: %v %v", recipient, err)
	}
	return *recipient
}

func TestWorkerMarksSentOnSuccess(t *testing.T) {
	st := memory.NewStore()
	seeded := seedOutbox(t, st, alarms.MethodEmail)
	channel := &stubChannel{method: alarms.MethodEmail}
	w, err := NewWorker(st, channel, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got := getRecipient(t, st, seeded.ID)
	if got.Status != alarms.RecipientSent || got.FailCount != 0 {
		t.Fatalf("want sent with zero failures, got %+v", got)
	}
	if channel.calls != 1 {
		t.Fatalf("want one delivery call, got %d", channel.calls)
	}
}

func TestWorkerBackoffScheduleAndFailCap(t *testing.T) {
	st := memory.NewStore()
	seeded := seedOutbox(t, st, alarms.MethodEmail)
	channel := &stubChannel{
		method:  alarms.MethodEmail,
		deliver: func(context.Context, alarms.Recipient, alarms.Event) error { return errors.New("smtp timeout") },
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w, err := NewWorker(st, channel, nil, WithWorkerClock(clock))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	ctx := context.Background()

	waits := []time.Duration{1 * time.Second, 5 * time.Second, 10 * time.Second, 60 * time.Second}
	for i, wait := range waits {
		if err := w.RunOnce(ctx); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		got := getRecipient(t, st, seeded.ID)
		if got.Status != alarms.RecipientOutbox || got.FailCount != i+1 {
			t.Fatalf("after failure %d: %+v", i+1, got)
		}
		if want := clock.Now().Add(wait); !got.BackoffUntil.Equal(want) {
			t.Fatalf("failure %d backoff: want %v, got %v", i+1, want, got.BackoffUntil)
		}

		// Still backing off: a pass before the deadline must not call
		// the channel.
		before := channel.calls
		clock.advance(wait / 2)
		if err := w.RunOnce(ctx); err != nil {
			t.Fatalf("backoff run %d: %v", i+1, err)
		}
		if channel.calls != before {
			t.Fatalf("channel called during backoff after failure %d", i+1)
		}
		clock.advance(wait)
	}

	// Fifth failure hits the cap.
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("final run: %v", err)
	}
	got := getRecipient(t, st, seeded.ID)
	if got.Status != alarms.RecipientFailed {
		t.Fatalf("want failed after cap, got %+v", got)
	}
	if channel.calls != 5 {
		t.Fatalf("want 5 delivery calls, got %d", channel.calls)
	}
}

func TestWorkerPermanentFailure(t *testing.T) {
	st := memory.NewStore()
	seeded := seedOutbox(t, st, alarms.MethodEmail)
	channel := &stubChannel{
		method: alarms.MethodEmail,
		deliver: func(context.Context, alarms.Recipient, alarms.Event) error {
			return Permanent(errors.New("recipient refused"))
		},
	}
	w, err := NewWorker(st, channel, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got := getRecipient(t, st, seeded.ID)
	if got.Status != alarms.RecipientFailed || got.FailCount != 0 {
		t.Fatalf("want failed without retries, got %+v", got)
	}
	if channel.calls != 1 {
		t.Fatalf("want one delivery call, got %d", channel.calls)
	}
}

func TestWorkerClaimedRowStaysClaimed(t *testing.T) {
	st := memory.NewStore()
	seeded := seedOutbox(t, st, alarms.MethodEmail)
	// The channel simulates a rival worker that marks the row sent
	// while this delivery is in flight.
	channel := &stubChannel{
		method: alarms.MethodEmail,
		deliver: func(ctx context.Context, recipient alarms.Recipient, _ alarms.Event) error {
			_, err := st.UpdateRecipientIf(ctx, recipient.ID,
				store.RecipientConditions{Status: []string{alarms.RecipientOutbox}},
				store.RecipientChange{Status: alarms.RecipientSent})
			return err
		},
	}
	w, err := NewWorker(st, channel, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got := getRecipient(t, st, seeded.ID)
	if got.Status != alarms.RecipientSent || got.FailCount != 0 {
		t.Fatalf("claimed row must keep its state, got %+v", got)
	}
}

func TestWorkerIgnoresOtherMethods(t *testing.T) {
	st := memory.NewStore()
	seeded := seedOutbox(t, st, alarms.MethodTelegram)
	channel := &stubChannel{method: alarms.MethodEmail}
	w, err := NewWorker(st, channel, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if channel.calls != 0 {
		t.Fatalf("email worker must not touch telegram rows")
	}
	got := getRecipient(t, st, seeded.ID)
	if got.Status != alarms.RecipientOutbox {
		t.Fatalf("row must stay in outbox, got %+v", got)
	}
}

func TestConfigPollInterval(t *testing.T) {
	cases := []struct {
		poll string
		want time.Duration
		bad  bool
	}{
		{"", 0, false},
		{"30", 30 * time.Second, false},
		{"5s", 5 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"-1", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := Config{Poll: tc.poll}.PollInterval()
		if tc.bad {
			if err == nil {
				t.Errorf("poll %q: want error", tc.poll)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("poll %q: got %v, %v", tc.poll, got, err)
		}
	}
}
