// Package reconcile merges pushed events and fetched snapshots into cached
// lobby state. Nothing here performs I/O; the session decides when to call
// in and with what.
package reconcile

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonStale      Reason = "stale"
	ReasonDuplicate  Reason = "duplicate"
	ReasonOutOfScope Reason = "out_of_scope"
	ReasonInvalid    Reason = "invalid"
)

// Warning reports an input that was dropped without changing state. It is
// never fatal.
type Warning struct {
	Reason Reason
	Event  string
	Detail string
}

func (w *Warning) Error() string {
	if w.Detail == "" {
		return fmt.Sprintf("reconcile %s: %s", w.Event, w.Reason)
	}
	return fmt.Sprintf("reconcile %s: %s (%s)", w.Event, w.Reason, w.Detail)
}

func warn(reason Reason, event, detail string) *Warning {
	return &Warning{Reason: reason, Event: event, Detail: detail}
}

// IsReason reports whether err is a *Warning with the given reason.
func IsReason(err error, reason Reason) bool {
	var w *Warning
	return errors.As(err, &w) && w.Reason == reason
}
