package memory

import (
	"context"
	"testing"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

func TestCreateEventAssignsID(t *testing.T) {
	st := NewStore()
	event := &alarms.Event{
		AlarmName: "robot-running",
		Created:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Summary:   "robot-running",
	}
	if err := st.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.ID == "" {
		t.Fatal("event ID should be assigned on create")
	}
	got, err := st.GetEvent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got == nil || got.AlarmName != "robot-running" {
		t.Fatalf("event not retrievable by assigned ID: %+v", got)
	}
}

func TestCreateRecipientAssignsID(t *testing.T) {
	st := NewStore()
	recipient := &alarms.Recipient{
		EventID: "evt-1",
		User:    "alice",
		Method:  alarms.MethodEmail,
		Address: "alice@example.com",
		Status:  alarms.RecipientOutbox,
	}
	if err := st.CreateRecipient(context.Background(), recipient); err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	if recipient.ID == "" {
		t.Fatal("recipient ID should be assigned on create")
	}
	got, err := st.GetRecipient(context.Background(), recipient.ID)
	if err != nil {
		t.Fatalf("get recipient: %v", err)
	}
	if got == nil || got.User != "alice" {
		t.Fatalf("recipient not retrievable by assigned ID: %+v", got)
	}
}
