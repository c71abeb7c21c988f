package subscriptions

import "testing"

func TestResolveTargets(t *testing.T) {
	subs := []Subscription{
		{ID: "1", User: "alice", Groups: []string{"maintenance"}, Method: "email", Address: "a@example.com", Status: StatusActive},
		{ID: "2", User: "alice", Groups: []string{"maintenance"}, Method: "email", Address: "a@example.com", Status: StatusActive},
		{ID: "3", User: "bob", Groups: []string{"maintenance", "night-shift"}, Method: "push", Address: "{}", Status: StatusActive},
		{ID: "4", User: "carol", Groups: []string{"maintenance"}, Method: "telegram", Address: "9", Status: StatusInactive},
		{ID: "5", User: "dave", Groups: []string{"other"}, Method: "email", Address: "d@example.com", Status: StatusActive},
		{ID: "6", User: "erin", Groups: []string{"maintenance"}, Method: "none", Status: StatusActive},
	}

	targets := ResolveTargets(subs, "maintenance")
	if len(targets) != 2 {
		t.Fatalf("want 2 distinct targets, got %+v", targets)
	}
	if targets[0].User != "alice" || targets[1].User != "bob" {
		t.Fatalf("unexpected targets: %+v", targets)
	}
	if got := ResolveTargets(subs, "night-shift"); len(got) != 1 || got[0].User != "bob" {
		t.Fatalf("night-shift: %+v", got)
	}
	if got := ResolveTargets(subs, "empty"); got != nil {
		t.Fatalf("unknown group should yield nothing: %+v", got)
	}
}
