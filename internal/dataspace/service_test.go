package dataspace_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []dataspace.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, ev dataspace.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

const (
	consumerUser = "user-consumer"
	subjectUser  = "user-subject"
	holderUser   = "user-holder"
	outsider     = "user-outsider"
)

func newWorld(t *testing.T) (*memory.Store, *dataspace.Service, *recordingNotifier) {
	t.Helper()
	st := memory.New()
	st.PutOrganization(dataspace.Organization{ID: "org-c", Name: "Consumer SA", Type: dataspace.OrgConsumer})
	st.PutOrganization(dataspace.Organization{ID: "org-s", Name: "Subject SL", Type: dataspace.OrgProvider})
	st.PutOrganization(dataspace.Organization{ID: "org-h", Name: "Holder Corp", Type: dataspace.OrgDataHolder})
	st.PutProduct(dataspace.DataProduct{ID: "prod-1", Name: "Supplier ESG"})
	st.PutAsset(dataspace.DataAsset{ID: "asset-1", ProductID: "prod-1", SubjectOrgID: "org-s", HolderOrgID: "org-h", Status: dataspace.AssetAvailable})
	st.PutAsset(dataspace.DataAsset{ID: "asset-old", ProductID: "prod-1", SubjectOrgID: "org-s", HolderOrgID: "org-h", Status: dataspace.AssetArchived})
	st.AddMembership(dataspace.Membership{UserID: consumerUser, OrganizationID: "org-c"})
	st.AddMembership(dataspace.Membership{UserID: subjectUser, OrganizationID: "org-s"})
	st.AddMembership(dataspace.Membership{UserID: holderUser, OrganizationID: "org-h"})

	n := &recordingNotifier{}
	return st, dataspace.NewService(st, n), n
}

func request(t *testing.T, svc *dataspace.Service) dataspace.DataTransaction {
	t.Helper()
	tx, err := svc.RequestAccess(context.Background(), consumerUser, dataspace.AccessRequest{
		AssetID:            "asset-1",
		ConsumerOrgID:      "org-c",
		Purpose:            "supplier risk scoring",
		AccessDurationDays: 90,
	})
	require.NoError(t, err)
	return tx
}

func TestFullApprovalLifecycle(t *testing.T) {
	st, svc, n := newWorld(t)
	ctx := context.Background()

	tx := request(t, svc)
	assert.Equal(t, dataspace.StatusPendingSubject, tx.Status)
	assert.Equal(t, "org-s", tx.SubjectOrgID)
	assert.Equal(t, "org-h", tx.HolderOrgID)

	tx, err := svc.PreApprove(ctx, subjectUser, tx.ID, "ok from subject")
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusPendingHolder, tx.Status)

	tx, err = svc.Approve(ctx, holderUser, tx.ID, "")
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusApproved, tx.Status)

	tx, err = svc.Complete(ctx, holderUser, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusCompleted, tx.Status)

	assert.Equal(t, []dataspace.Event{
		dataspace.EventCreated, dataspace.EventPreApproved, dataspace.EventApproved, dataspace.EventCompleted,
	}, n.events)

	history, err := st.Transactions().History(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, dataspace.ActionPreApprove, history[0].Action)
	assert.Equal(t, "org-s", history[0].ActorOrgID)
	assert.Equal(t, "ok from subject", history[0].Notes)
	assert.Equal(t, dataspace.ActionApprove, history[1].Action)

	logs, err := st.GovernanceLogs().ListByOrganization(ctx, "org-h", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestDenyPicksStage(t *testing.T) {
	_, svc, n := newWorld(t)
	ctx := context.Background()

	tx := request(t, svc)
	denied, err := svc.Deny(ctx, subjectUser, tx.ID, "no consent")
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusDeniedSubject, denied.Status)

	tx2 := request(t, svc)
	_, err = svc.PreApprove(ctx, subjectUser, tx2.ID, "")
	require.NoError(t, err)
	denied2, err := svc.Deny(ctx, holderUser, tx2.ID, "")
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusDeniedHolder, denied2.Status)

	assert.Contains(t, n.events, dataspace.EventDenied)

	_, err = svc.Deny(ctx, holderUser, tx2.ID, "again")
	assert.ErrorIs(t, err, dataspace.ErrIllegalTransition)
}

func TestWrongPartyIsForbidden(t *testing.T) {
	_, svc, _ := newWorld(t)
	ctx := context.Background()
	tx := request(t, svc)

	_, err := svc.PreApprove(ctx, holderUser, tx.ID, "")
	assert.ErrorIs(t, err, auth.ErrForbidden)
	_, err = svc.Approve(ctx, holderUser, tx.ID, "")
	assert.ErrorIs(t, err, dataspace.ErrIllegalTransition, "approval must wait for the subject")
	_, err = svc.Cancel(ctx, outsider, tx.ID, "")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestTerminalStatusesStayTerminal(t *testing.T) {
	st, svc, _ := newWorld(t)
	ctx := context.Background()
	tx := request(t, svc)
	_, err := svc.Cancel(ctx, consumerUser, tx.ID, "changed my mind")
	require.NoError(t, err)

	for name, op := range map[string]func() error{
		"pre-approve": func() error { _, err := svc.PreApprove(ctx, subjectUser, tx.ID, ""); return err },
		"approve":     func() error { _, err := svc.Approve(ctx, holderUser, tx.ID, ""); return err },
		"complete":    func() error { _, err := svc.Complete(ctx, holderUser, tx.ID); return err },
		"revoke":      func() error { _, err := svc.Revoke(ctx, subjectUser, tx.ID, ""); return err },
	} {
		err := op()
		assert.Truef(t, errors.Is(err, dataspace.ErrIllegalTransition), "%s: %v", name, err)
	}
	got, _ := st.Transactions().Get(ctx, tx.ID)
	assert.Equal(t, dataspace.StatusCancelled, got.Status)
}

func TestRequestAccessValidation(t *testing.T) {
	_, svc, n := newWorld(t)
	ctx := context.Background()

	_, err := svc.RequestAccess(ctx, consumerUser, dataspace.AccessRequest{AssetID: "asset-1", ConsumerOrgID: "org-c", AccessDurationDays: 30})
	assert.ErrorIs(t, err, dataspace.ErrInvalidRequest)

	_, err = svc.RequestAccess(ctx, consumerUser, dataspace.AccessRequest{AssetID: "asset-1", ConsumerOrgID: "org-c", Purpose: "x", AccessDurationDays: 0})
	assert.ErrorIs(t, err, dataspace.ErrInvalidRequest)

	_, err = svc.RequestAccess(ctx, consumerUser, dataspace.AccessRequest{AssetID: "nope", ConsumerOrgID: "org-c", Purpose: "x", AccessDurationDays: 1})
	assert.ErrorIs(t, err, dataspace.ErrNotFound)

	_, err = svc.RequestAccess(ctx, consumerUser, dataspace.AccessRequest{AssetID: "asset-old", ConsumerOrgID: "org-c", Purpose: "x", AccessDurationDays: 1})
	assert.ErrorIs(t, err, dataspace.ErrPrecondition)

	_, err = svc.RequestAccess(ctx, outsider, dataspace.AccessRequest{AssetID: "asset-1", ConsumerOrgID: "org-c", Purpose: "x", AccessDurationDays: 1})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	assert.Empty(t, n.events)
}

func TestNotifierFailureDoesNotUndoTransition(t *testing.T) {
	st, svc, n := newWorld(t)
	n.err = errors.New("smtp down")
	tx := request(t, svc)

	got, err := st.Transactions().Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusPendingSubject, got.Status)
}

func TestRevokeAfterCompletion(t *testing.T) {
	_, svc, n := newWorld(t)
	ctx := context.Background()
	tx := request(t, svc)
	_, _ = svc.PreApprove(ctx, subjectUser, tx.ID, "")
	_, _ = svc.Approve(ctx, holderUser, tx.ID, "")
	_, _ = svc.Complete(ctx, holderUser, tx.ID)

	before := len(n.events)
	revoked, err := svc.Revoke(ctx, holderUser, tx.ID, "contract ended")
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusRevoked, revoked.Status)
	assert.Len(t, n.events, before, "revocation raises no notification event")
}

type flakyMemberships struct {
	dataspace.MembershipStore
	mu    sync.Mutex
	calls int
	err   error
}

// ListByUser fails only on the first call.
func (f *flakyMemberships) ListByUser(ctx context.Context, userID string) ([]dataspace.Membership, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		return nil, f.err
	}
	return f.MembershipStore.ListByUser(ctx, userID)
}

type flakyStore struct {
	*memory.Store
	memberships *flakyMemberships
}

func (s flakyStore) Memberships() dataspace.MembershipStore { return s.memberships }

func TestRevokePropagatesMembershipLookupFailure(t *testing.T) {
	st, svc, _ := newWorld(t)
	ctx := context.Background()
	tx := request(t, svc)
	_, _ = svc.PreApprove(ctx, subjectUser, tx.ID, "")
	_, _ = svc.Approve(ctx, holderUser, tx.ID, "")

	boom := errors.New("connection reset")
	flaky := &flakyMemberships{MembershipStore: st.Memberships(), err: boom}
	_, err := dataspace.NewService(flakyStore{Store: st, memberships: flaky}, &recordingNotifier{}).
		Revoke(ctx, holderUser, tx.ID, "contract ended")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, auth.ErrForbidden)
	assert.Equal(t, 1, flaky.calls, "holder check must not run after a lookup failure")

	got, err := st.Transactions().Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, dataspace.StatusApproved, got.Status)

	_, err = svc.Revoke(ctx, outsider, tx.ID, "")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}
