package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procuredata.io/internal/dataspace"
)

var txCols = []string{
	"id", "asset_id", "consumer_org_id", "subject_org_id", "holder_org_id", "purpose", "justification",
	"access_duration_days", "status", "payment_status", "requested_by", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func txRow(status string, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(txCols).AddRow(
		"tx-1", "asset-1", "org-c", "org-s", "org-h", "benchmarking", "", 90,
		status, "not_required", "user-c", at, at,
	)
}

func TestTransitionWritesApprovalInSameTx(t *testing.T) {
	st, mock := newMock(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`update data_transactions set status = \$3`).
		WithArgs("tx-1", "pending_subject", "pending_holder").
		WillReturnRows(txRow("pending_holder", now))
	mock.ExpectQuery(`insert into approval_history`).
		WithArgs("appr-1", "tx-1", "user-s", "org-s", "pre_approve", "ok").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	entry := &dataspace.ApprovalEntry{ID: "appr-1", ActorUserID: "user-s", ActorOrgID: "org-s", Action: dataspace.ActionPreApprove, Notes: "ok"}
	tx, err := st.Transactions().Transition(context.Background(), "tx-1", dataspace.StatusPendingSubject, dataspace.StatusPendingHolder, entry)
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusPendingHolder, tx.Status)
	assert.Equal(t, 90, tx.AccessDurationDays)
	assert.Equal(t, "tx-1", entry.TransactionID)
	assert.Equal(t, now, entry.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLostRace(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`update data_transactions`).
		WithArgs("tx-1", "pending_subject", "pending_holder").
		WillReturnRows(sqlmock.NewRows(txCols))
	mock.ExpectQuery(`select status from data_transactions where id = \$1`).
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))
	mock.ExpectRollback()

	_, err := st.Transactions().Transition(context.Background(), "tx-1", dataspace.StatusPendingSubject, dataspace.StatusPendingHolder, nil)
	require.ErrorIs(t, err, dataspace.ErrIllegalTransition)
	assert.Contains(t, err.Error(), "is cancelled")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionMissingTransaction(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`update data_transactions`).WillReturnRows(sqlmock.NewRows(txCols))
	mock.ExpectQuery(`select status from data_transactions`).WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	_, err := st.Transactions().Transition(context.Background(), "nope", dataspace.StatusApproved, dataspace.StatusCompleted, nil)
	require.ErrorIs(t, err, dataspace.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsInvalidPairWithoutQuerying(t *testing.T) {
	st, mock := newMock(t)
	_, err := st.Transactions().Transition(context.Background(), "tx-1", dataspace.StatusCompleted, dataspace.StatusApproved, nil)
	require.ErrorIs(t, err, dataspace.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{pgErrUniqueViolation, dataspace.ErrConflict},
		{pgErrForeignKeyViolation, dataspace.ErrNotFound},
		{pgErrCheckViolation, dataspace.ErrInvalidRequest},
		{pgErrRaiseException, dataspace.ErrPrecondition},
	}
	for _, tc := range cases {
		err := mapError(&pgconn.PgError{Code: tc.code, Message: "boom"})
		assert.ErrorIs(t, err, tc.want, tc.code)
	}
	plain := errors.New("network")
	assert.Same(t, plain, mapError(plain))
}

func TestCreateMapsForeignKeyViolation(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`insert into data_transactions`).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation, Message: "asset missing"})

	tx := &dataspace.DataTransaction{AssetID: "missing", Status: dataspace.StatusPendingSubject, AccessDurationDays: 30}
	err := st.Transactions().Create(context.Background(), tx)
	require.ErrorIs(t, err, dataspace.ErrNotFound)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, dataspace.PaymentNotRequired, tx.PaymentStatus)
}

func TestActivityByRequesterKeepsTotals(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()
	cols := append(append([]string{}, txCols...), "total")
	rows := sqlmock.NewRows(cols).
		AddRow("tx-2", "a", "c", "s", "h", "p", "", 1, "approved", "not_required", "user-a", now, now, 3).
		AddRow("tx-1", "a", "c", "s", "h", "p", "", 1, "completed", "not_required", "user-a", now, now, 3).
		AddRow("tx-9", "a", "c", "s", "h", "p", "", 1, "initiated", "not_required", "user-b", now, now, 1)
	mock.ExpectQuery(`row_number\(\) over \(partition by requested_by`).WithArgs(2).WillReturnRows(rows)

	got, err := st.Transactions().ActivityByRequester(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, got["user-a"].Count)
	assert.Len(t, got["user-a"].Recent, 2)
	assert.Equal(t, "tx-2", got["user-a"].Recent[0].ID)
	assert.Equal(t, 1, got["user-b"].Count)
}

func TestRecentApprovalsByActorRanksPerActor(t *testing.T) {
	st, mock := newMock(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "transaction_id", "actor_user_id", "actor_org_id", "action", "notes", "created_at"}).
		AddRow("appr-2", "tx-2", "user-a", "org-s", "approve", "", now).
		AddRow("appr-1", "tx-1", "user-a", "org-s", "pre_approve", "", now.Add(-time.Minute))
	mock.ExpectQuery(`row_number\(\) over \(partition by actor_user_id order by created_at desc, id desc\) as rn\s+from approval_history\s+\) ranked\s+where rn <= \$1\s+order by created_at desc, id desc`).
		WithArgs(20).
		WillReturnRows(rows)

	got, err := st.Transactions().RecentApprovalsByActor(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "appr-2", got[0].ID)
	assert.Equal(t, dataspace.ActionApprove, got[0].Action)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentGovernanceByUserSkipsSystemEntries(t *testing.T) {
	st, mock := newMock(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "organization_id", "transaction_id", "user_id", "level", "category", "message", "metadata", "created_at"}).
		AddRow("log-2", "org-s", nil, "user-a", "info", "approval", "approved", []byte(`{"step":2}`), now).
		AddRow("log-1", nil, "tx-1", "user-a", "warning", "approval", "denied", nil, now.Add(-time.Minute))
	mock.ExpectQuery(`row_number\(\) over \(partition by user_id order by created_at desc, id desc\) as rn\s+from governance_logs\s+where user_id <> ''\s+\) ranked\s+where rn <= \$1`).
		WithArgs(20).
		WillReturnRows(rows)

	got, err := st.GovernanceLogs().RecentByUser(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "log-2", got[0].ID)
	assert.Equal(t, "org-s", got[0].OrganizationID)
	assert.Equal(t, float64(2), got[0].Metadata["step"])
	assert.Equal(t, "tx-1", got[1].TransactionID)
	assert.Equal(t, dataspace.LevelWarning, got[1].Level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReadScopedToOwner(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(`update notifications set is_read = \$3 where id = \$1 and user_id = \$2`).
		WithArgs("n-1", "someone-else", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.Notifications().SetRead(context.Background(), "someone-else", "n-1", true)
	require.ErrorIs(t, err, dataspace.ErrNotFound)
}

func TestInsertNotificationsIsAtomic(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into notifications`).
		WithArgs(sqlmock.AnyArg(), "u-1", "org-1", "t", "m", "info", "/requests/tx-1", false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(`insert into notifications`).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	mock.ExpectRollback()

	_, err := st.Notifications().Insert(context.Background(), []dataspace.Notification{
		{UserID: "u-1", OrganizationID: "org-1", Title: "t", Message: "m", Link: "/requests/tx-1"},
		{UserID: "u-2", OrganizationID: "gone", Title: "t", Message: "m"},
	})
	require.ErrorIs(t, err, dataspace.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditAppendStoresDetailsAsJSON(t *testing.T) {
	st, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`insert into audit_logs`).
		WithArgs(sqlmock.AnyArg(), "org-1", "u-1", "", "admin.user.delete", "users", `{"target":"u-2"}`, "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	e := &dataspace.AuditLog{OrganizationID: "org-1", UserID: "u-1", Action: "admin.user.delete", Resource: "users",
		Details: map[string]any{"target": "u-2"}}
	require.NoError(t, st.AuditLogs().Append(context.Background(), e))
	assert.Equal(t, now, e.CreatedAt)
}

func TestAuditAppendRejectedByTrigger(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(`insert into audit_logs`).
		WillReturnError(&pgconn.PgError{Code: pgErrRaiseException, Message: "audit_logs is append-only"})
	err := st.AuditLogs().Append(context.Background(), &dataspace.AuditLog{OrganizationID: "o", Action: "x"})
	require.ErrorIs(t, err, dataspace.ErrPrecondition)
}

func TestGetUsersPassesIDList(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`where id = any\(string_to_array\(\$1, ','\)\)`).
		WithArgs("u-1,u-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "created_at", "last_sign_in_at"}).
			AddRow("u-1", "a@example.com", "A", created, nil))

	got, err := st.GetUsers(context.Background(), []string{"u-1", "u-2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a@example.com", got["u-1"].Email)
	assert.Nil(t, got["u-1"].LastSignInAt)
}

func TestGetUsersEmptyDoesNotQuery(t *testing.T) {
	st, mock := newMock(t)
	got, err := st.GetUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`delete from users where id = \$1`).WithArgs("u-x").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	require.ErrorIs(t, st.DeleteUser(context.Background(), "u-x"), dataspace.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserDropsRoles(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`delete from users`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`delete from user_roles where user_id = \$1`).WithArgs("u-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, st.DeleteUser(context.Background(), "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
