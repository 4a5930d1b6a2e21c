package dataspace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
)

func TestScopedNotificationsOnlyOwn(t *testing.T) {
	st, _, _ := newWorld(t)
	ctx := context.Background()
	rows, err := st.Notifications().Insert(ctx, []dataspace.Notification{
		{UserID: consumerUser, Title: "mine"},
		{UserID: holderUser, Title: "theirs"},
	})
	require.NoError(t, err)

	scoped, err := dataspace.NewScoped(st, consumerUser)
	require.NoError(t, err)

	list, err := scoped.Notifications(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mine", list[0].Title)

	assert.ErrorIs(t, scoped.MarkRead(ctx, rows[1].ID), dataspace.ErrNotFound)
	require.NoError(t, scoped.MarkRead(ctx, rows[0].ID))

	unread, err := scoped.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.NoError(t, scoped.MarkUnread(ctx, rows[0].ID))
	n, err := scoped.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScopedTransactionVisibility(t *testing.T) {
	st, svc, _ := newWorld(t)
	ctx := context.Background()
	tx := request(t, svc)

	for _, user := range []string{consumerUser, subjectUser, holderUser} {
		scoped, _ := dataspace.NewScoped(st, user)
		_, err := scoped.Transaction(ctx, tx.ID)
		assert.NoErrorf(t, err, "%s should see the transaction", user)
	}
	scoped, _ := dataspace.NewScoped(st, outsider)
	_, err := scoped.Transaction(ctx, tx.ID)
	assert.ErrorIs(t, err, dataspace.ErrNotFound)
	_, err = scoped.History(ctx, tx.ID)
	assert.ErrorIs(t, err, dataspace.ErrNotFound)
}

func TestScopedLogsRequireMembership(t *testing.T) {
	st, _, _ := newWorld(t)
	ctx := context.Background()
	require.NoError(t, st.AuditLogs().Append(ctx, &dataspace.AuditLog{OrganizationID: "org-c", Action: "export", Resource: "report"}))

	member, _ := dataspace.NewScoped(st, consumerUser)
	logs, err := member.AuditLogs(ctx, "org-c", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	stranger, _ := dataspace.NewScoped(st, holderUser)
	_, err = stranger.AuditLogs(ctx, "org-c", 10)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = stranger.GovernanceLogs(ctx, "org-c", 10)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestNewScopedRequiresUser(t *testing.T) {
	st, _, _ := newWorld(t)
	_, err := dataspace.NewScoped(st, "  ")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
