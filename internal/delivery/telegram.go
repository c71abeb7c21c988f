package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// TelegramChannel delivers alarm events through the Telegram bot API.
// The recipient address is the chat id; the bot key is loaded lazily
// from settings and cached after the first successful load, so a
// transient settings failure is retried on the next delivery.
type TelegramChannel struct {
	settings SettingsReader
	baseURL  string
	client   *http.Client

	mu  sync.Mutex
	key string
}

// TelegramOption configures the telegram channel.
type TelegramOption func(*TelegramChannel)

// WithTelegramBaseURL overrides the bot API base URL (tests).
func WithTelegramBaseURL(url string) TelegramOption {
	return func(c *TelegramChannel) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) TelegramOption {
	return func(c *TelegramChannel) {
		if client != nil {
			c.client = client
		}
	}
}

// NewTelegramChannel constructs a telegram channel.
func NewTelegramChannel(settings SettingsReader, opts ...TelegramOption) (*TelegramChannel, error) {
	if settings == nil {
		return nil, errors.New("telegram channel: nil settings")
	}
	channel := &TelegramChannel{
		settings: settings,
		baseURL:  defaultTelegramBaseURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel, nil
}

// Method reports the recipient method this channel serves.
func (c *TelegramChannel) Method() string { return alarms.MethodTelegram }

// Deliver posts sendMessage with the event summary. A rejected chat id
// (bad request, blocked bot, unknown chat) is permanent.
func (c *TelegramChannel) Deliver(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error {
	if c == nil || c.settings == nil {
		return errors.New("telegram channel: nil settings")
	}
	key, err := c.botKey(ctx)
	if err != nil {
		return err
	}
	if recipient.Address == "" {
		return Permanent(errors.New("telegram channel: empty chat id"))
	}
	body, err := json.Marshal(telegramMessage{
		ChatID: recipient.Address,
		Text:   event.Summary + "\n\n" + event.Description,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	switch {
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusNotFound:
		return Permanent(fmt.Errorf("telegram channel: chat rejected (%d)", resp.StatusCode))
	case resp.StatusCode >= 300:
		return fmt.Errorf("telegram channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}

func (c *TelegramChannel) botKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != "" {
		return c.key, nil
	}
	key, err := c.settings.GetSetting(ctx, SettingTelegramAPIKey)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("telegram channel: bot key not configured")
	}
	c.key = key
	return c.key, nil
}
