package dataspace

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a DataTransaction.
type Status string

const (
	StatusInitiated      Status = "initiated"
	StatusPendingSubject Status = "pending_subject"
	StatusPendingHolder  Status = "pending_holder"
	StatusApproved       Status = "approved"
	StatusDeniedSubject  Status = "denied_subject"
	StatusDeniedHolder   Status = "denied_holder"
	StatusCompleted      Status = "completed"
	StatusRevoked        Status = "revoked"
	StatusCancelled      Status = "cancelled"
)

// transitions is the only place allowed moves are defined.
var transitions = map[Status][]Status{
	StatusInitiated:      {StatusPendingSubject, StatusCancelled},
	StatusPendingSubject: {StatusPendingHolder, StatusDeniedSubject, StatusCancelled},
	StatusPendingHolder:  {StatusApproved, StatusDeniedHolder, StatusCancelled},
	StatusApproved:       {StatusCompleted, StatusRevoked},
	StatusCompleted:      {StatusRevoked},
	StatusDeniedSubject:  nil,
	StatusDeniedHolder:   nil,
	StatusRevoked:        nil,
	StatusCancelled:      nil,
}

// ParseStatus validates s against the status enum.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
	return st, nil
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrIllegalTransition for a disallowed move.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Event is a workflow step that triggers notifications.
type Event string

const (
	EventCreated     Event = "created"
	EventPreApproved Event = "pre_approved"
	EventApproved    Event = "approved"
	EventDenied      Event = "denied"
	EventCompleted   Event = "completed"
)

// ParseEvent validates s against the notification event enum.
func ParseEvent(s string) (Event, error) {
	switch ev := Event(strings.TrimSpace(s)); ev {
	case EventCreated, EventPreApproved, EventApproved, EventDenied, EventCompleted:
		return ev, nil
	default:
		return "", fmt.Errorf("%w: unsupported eventType %q", ErrInvalidRequest, s)
	}
}

// EventFor returns the notification event raised by entering status to.
// Revocation and cancellation raise none.
func EventFor(to Status) (Event, bool) {
	switch to {
	case StatusPendingSubject:
		return EventCreated, true
	case StatusPendingHolder:
		return EventPreApproved, true
	case StatusApproved:
		return EventApproved, true
	case StatusDeniedSubject, StatusDeniedHolder:
		return EventDenied, true
	case StatusCompleted:
		return EventCompleted, true
	default:
		return "", false
	}
}
