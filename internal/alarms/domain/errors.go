package alarms

import "errors"

// ErrNotFound indicates a missing alarm definition, event or recipient.
var ErrNotFound = errors.New("alarm: not found")
