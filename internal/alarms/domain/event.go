package alarms

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Recipient statuses. Transitions form a DAG: outbox moves to sent,
// failed or deleted; failed stays failed until admin intervention.
const (
	RecipientOutbox  = "outbox"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
	RecipientDeleted = "deleted"
)

// Delivery methods.
const (
	MethodEmail    = "email"
	MethodPush     = "push"
	MethodTelegram = "telegram"
	MethodNone     = "none"
)

// DefaultBackoff is the retry schedule indexed by fail count.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	10 * time.Second,
	60 * time.Second,
	240 * time.Second,
}

// DefaultFailCap is the fail count at which a recipient turns failed.
const DefaultFailCap = 4

// Event records one alarm firing. Immutable once created.
type Event struct {
	ID          string    `json:"id"`
	AlarmName   string    `json:"alarm_name"`
	Created     time.Time `json:"created"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
}

// Recipient is one delivery obligation produced by an event for one
// subscriber. BackoffUntil is meaningful only while status is outbox.
type Recipient struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	User         string    `json:"user"`
	Method       string    `json:"method"`
	Address      string    `json:"address,omitempty"`
	Status       string    `json:"status"`
	FailCount    int       `json:"fail_count"`
	BackoffUntil time.Time `json:"backoff_until,omitempty"`
}

// NewID generates a random identifier for events and recipients.
func NewID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	// UUIDv4 formatting (without external dependency).
	buf[6] = (buf[6] & 0x0f) | 0x40
	buf[8] = (buf[8] & 0x3f) | 0x80
	return hex.EncodeToString(buf[:])
}
