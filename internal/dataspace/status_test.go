package dataspace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusInitiated, StatusPendingSubject, StatusPendingHolder, StatusApproved,
	StatusDeniedSubject, StatusDeniedHolder, StatusCompleted, StatusRevoked, StatusCancelled,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusInitiated, StatusPendingSubject}:     true,
		{StatusInitiated, StatusCancelled}:          true,
		{StatusPendingSubject, StatusPendingHolder}: true,
		{StatusPendingSubject, StatusDeniedSubject}: true,
		{StatusPendingSubject, StatusCancelled}:     true,
		{StatusPendingHolder, StatusApproved}:       true,
		{StatusPendingHolder, StatusDeniedHolder}:   true,
		{StatusPendingHolder, StatusCancelled}:      true,
		{StatusApproved, StatusCompleted}:           true,
		{StatusApproved, StatusRevoked}:             true,
		{StatusCompleted, StatusRevoked}:            true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]Status{from, to}]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.Truef(t, errors.Is(err, ErrIllegalTransition), "%s -> %s: %v", from, to, err)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, st := range []Status{StatusDeniedSubject, StatusDeniedHolder, StatusRevoked, StatusCancelled} {
		assert.Truef(t, st.Terminal(), "%s should be terminal", st)
	}
	for _, st := range []Status{StatusInitiated, StatusPendingSubject, StatusPendingHolder, StatusApproved, StatusCompleted} {
		assert.Falsef(t, st.Terminal(), "%s should not be terminal", st)
	}
}

func TestNoTransitionReturnsToEarlierStage(t *testing.T) {
	order := map[Status]int{
		StatusInitiated: 0, StatusPendingSubject: 1, StatusPendingHolder: 2, StatusApproved: 3, StatusCompleted: 4,
	}
	for from, fi := range order {
		for to, ti := range order {
			if ti < fi {
				assert.Falsef(t, CanTransition(from, to), "%s -> %s goes backwards", from, to)
			}
		}
	}
}

func TestParseEvent(t *testing.T) {
	for _, s := range []string{"created", "pre_approved", "approved", "denied", "completed"} {
		ev, err := ParseEvent(s)
		require.NoError(t, err)
		assert.Equal(t, Event(s), ev)
	}
	_, err := ParseEvent("revoked")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEventFor(t *testing.T) {
	cases := map[Status]Event{
		StatusPendingSubject: EventCreated,
		StatusPendingHolder:  EventPreApproved,
		StatusApproved:       EventApproved,
		StatusDeniedSubject:  EventDenied,
		StatusDeniedHolder:   EventDenied,
		StatusCompleted:      EventCompleted,
	}
	for st, want := range cases {
		got, ok := EventFor(st)
		require.Truef(t, ok, "expected event for %s", st)
		assert.Equal(t, want, got)
	}
	for _, st := range []Status{StatusInitiated, StatusRevoked, StatusCancelled} {
		_, ok := EventFor(st)
		assert.Falsef(t, ok, "unexpected event for %s", st)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" approved ")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, st)
	_, err = ParseStatus("approved_by_holder")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
