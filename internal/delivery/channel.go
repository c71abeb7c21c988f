// Package delivery drains the alarm recipient outbox through the
// configured notification channels with bounded retries.
package delivery

import (
	"context"
	"errors"

	alarms "shopfloor-cloud/internal/alarms/domain"
)

// Channel delivers one alarm event to one recipient address.
type Channel interface {
	// Method names the recipient method this channel serves.
	Method() string
	Deliver(ctx context.Context, recipient alarms.Recipient, event alarms.Event) error
}

// permanentError marks a delivery failure that retrying cannot fix,
// such as an unparsable address or a revoked push subscription.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err is non-retryable.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
