package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

// Settings keys read by the delivery channels.
const (
	SettingPushPrivKey    = "push_priv_key"
	SettingPushPublicKey  = "push_public_key"
	SettingPushEmail      = "push_email"
	SettingTelegramAPIKey = "telegram_api_key"
)

// SettingsReader supplies credentials stored in the settings table.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

type pushPayload struct {
	Notification pushNotification `json:"notification"`
}

type pushNotification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	Icon      string `json:"icon"`
}

// PushChannel delivers alarm events as VAPID-signed web push messages.
// The recipient address holds the browser subscription JSON; the VAPID
// key pair is loaded lazily from settings and cached after the first
// successful load, so a transient settings failure is retried on the
// next delivery.
type PushChannel struct {
	settings SettingsReader

	mu      sync.Mutex
	loaded  bool
	options webpush.Options
}

// NewPushChannel constructs a web push channel.
func NewPushChannel(settings SettingsReader) (*PushChannel, error) {
	if settings == nil {
		return nil, errors.New("push channel: nil settings")
	}
	return &PushChannel{settings: settings}, nil
}

// Method reports the recipient method this channel serves.
func (c *PushChannel) Method() string { return alarms.MethodPush }

// Deliver posts the notification to the subscription endpoint. A gone
// or unknown endpoint and an unparsable subscription are permanent.
func (c *PushChannel) Deliver(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error {
	if c == nil || c.settings == nil {
		return errors.New("push channel: nil settings")
	}
	opts, err := c.vapidOptions(ctx)
	if err != nil {
		return err
	}
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(recipient.Address), &sub); err != nil {
		return Permanent(fmt.Errorf("push channel: bad subscription: %w", err))
	}
	if sub.Endpoint == "" {
		return Permanent(errors.New("push channel: subscription without endpoint"))
	}
	created := event.Created.UTC().Format(time.RFC3339)
	payload, err := json.Marshal(pushPayload{Notification: pushNotification{
		Title:     fmt.Sprintf("%s (%s)", event.AlarmName, created),
		Body:      event.Summary,
		Timestamp: created,
		Icon:      "/assets/logo.png",
	}})
	if err != nil {
		return err
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Permanent(fmt.Errorf("push channel: subscription gone (%d)", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("push channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

func (c *PushChannel) vapidOptions(ctx context.Context) (webpush.Options, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.options, nil
	}
	priv, err := c.settings.GetSetting(ctx, SettingPushPrivKey)
	if err != nil {
		return webpush.Options{}, err
	}
	pub, err := c.settings.GetSetting(ctx, SettingPushPublicKey)
	if err != nil {
		return webpush.Options{}, err
	}
	email, err := c.settings.GetSetting(ctx, SettingPushEmail)
	if err != nil {
		return webpush.Options{}, err
	}
	if priv == "" || pub == "" {
		return webpush.Options{}, errors.New("push channel: vapid keys not configured")
	}
	c.options = webpush.Options{
		Subscriber:      "mailto:" + email,
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		TTL:             300,
	}
	c.loaded = true
	return c.options, nil
}
