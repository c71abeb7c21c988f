package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

type flakySettings struct {
	values   map[string]string
	failures int
}

func (s *flakySettings) GetSetting(_ context.Context, key string) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("settings unavailable")
	}
	return s.values[key], nil
}

func TestTelegramRetriesKeyLoadAfterError(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	settings := &flakySettings{
		values:   map[string]string{SettingTelegramAPIKey: "bot-key"},
		failures: 1,
	}
	channel, err := NewTelegramChannel(settings, WithTelegramBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	recipient := alarms.Recipient{ID: "r1", Address: "42"}
	event := alarms.Event{ID: "e1", AlarmName: "robot-running", Summary: "fired", Description: "detail"}

	err = channel.Deliver(context.Background(), recipient, event)
	if err == nil {
		t.Fatal("first delivery should fail while settings are unavailable")
	}
	if IsPermanent(err) {
		t.Fatalf("settings failure must stay retryable, got permanent: %v", err)
	}

	if err := channel.Deliver(context.Background(), recipient, event); err != nil {
		t.Fatalf("second delivery should reload the key and succeed: %v", err)
	}
	if gotPath != "/botbot-key/sendMessage" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestPushRetriesKeyLoadAfterError(t *testing.T) {
	settings := &flakySettings{
		values: map[string]string{
			SettingPushPrivKey:   "priv-key",
			SettingPushPublicKey: "pub-key",
			SettingPushEmail:     "ops@example.com",
		},
		failures: 1,
	}
	channel, err := NewPushChannel(settings)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	recipient := alarms.Recipient{ID: "r1", Address: "not a subscription"}
	event := alarms.Event{ID: "e1", AlarmName: "robot-running", Summary: "fired"}

	err = channel.Deliver(context.Background(), recipient, event)
	if err == nil {
		t.Fatal("first delivery should fail while settings are unavailable")
	}
	if IsPermanent(err) {
		t.Fatalf("settings failure must stay retryable, got permanent: %v", err)
	}

	// The second attempt gets past the key load and rejects the bad
	// subscription, which only happens when the load was retried.
	err = channel.Deliver(context.Background(), recipient, event)
	if !IsPermanent(err) {
		t.Fatalf("expected permanent bad-subscription error after reload, got %v", err)
	}
}
