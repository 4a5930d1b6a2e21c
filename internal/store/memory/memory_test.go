package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.PutOrganization(dataspace.Organization{ID: "org-c", Name: "Consumer SA", Type: dataspace.OrgConsumer})
	s.PutOrganization(dataspace.Organization{ID: "org-s", Name: "Subject SL", Type: dataspace.OrgProvider})
	s.PutOrganization(dataspace.Organization{ID: "org-h", Name: "Holder Corp", Type: dataspace.OrgDataHolder})
	s.PutProduct(dataspace.DataProduct{ID: "prod-1", Name: "Supplier ESG"})
	s.PutAsset(dataspace.DataAsset{ID: "asset-1", ProductID: "prod-1", SubjectOrgID: "org-s", HolderOrgID: "org-h", Status: dataspace.AssetAvailable})
	return s
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	tx := dataspace.DataTransaction{ID: "tx-1", AssetID: "asset-1", Status: dataspace.StatusPendingSubject, RequestedBy: "u1"}
	if err := s.Transactions().Create(ctx, &tx); err != nil {
		t.Fatalf("Create: %v", err)
	}

	entry := &dataspace.ApprovalEntry{ActorUserID: "u2", Action: dataspace.ActionPreApprove}
	if _, err := s.Transactions().Transition(ctx, "tx-1", dataspace.StatusPendingSubject, dataspace.StatusPendingHolder, entry); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	// A second writer that still believes the old status must lose.
	_, err := s.Transactions().Transition(ctx, "tx-1", dataspace.StatusPendingSubject, dataspace.StatusDeniedSubject, &dataspace.ApprovalEntry{Action: dataspace.ActionDeny})
	if !errors.Is(err, dataspace.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	got, _ := s.Transactions().Get(ctx, "tx-1")
	if got.Status != dataspace.StatusPendingHolder {
		t.Fatalf("status overwritten: %s", got.Status)
	}
	history, _ := s.Transactions().History(ctx, "tx-1")
	if len(history) != 1 || history[0].Action != dataspace.ActionPreApprove {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestDetailsJoinsNames(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	tx := dataspace.DataTransaction{ID: "tx-1", AssetID: "asset-1", ConsumerOrgID: "org-c", SubjectOrgID: "org-s", HolderOrgID: "org-h"}
	_ = s.Transactions().Create(ctx, &tx)

	d, err := s.Transactions().Details(ctx, "tx-1")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	want := []string{"Supplier ESG", "Consumer SA", "Subject SL", "Holder Corp"}
	got := []string{d.ProductName, d.ConsumerOrgName, d.SubjectOrgName, d.HolderOrgName}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("details mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Transactions().Details(ctx, "missing"); !errors.Is(err, dataspace.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityByRequesterLimitsRecent(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		tx := dataspace.DataTransaction{AssetID: "asset-1", RequestedBy: "u1", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		_ = s.Transactions().Create(ctx, &tx)
	}
	act, err := s.Transactions().ActivityByRequester(ctx, 10)
	if err != nil {
		t.Fatalf("ActivityByRequester: %v", err)
	}
	if act["u1"].Count != 12 || len(act["u1"].Recent) != 10 {
		t.Fatalf("unexpected activity count=%d recent=%d", act["u1"].Count, len(act["u1"].Recent))
	}
	if !act["u1"].Recent[0].CreatedAt.Equal(base.Add(11 * time.Hour)) {
		t.Fatalf("expected newest first, got %v", act["u1"].Recent[0].CreatedAt)
	}
}

func TestNotificationsAreOwnerScoped(t *testing.T) {
	s := New()
	ctx := context.Background()
	rows, _ := s.Notifications().Insert(ctx, []dataspace.Notification{
		{UserID: "u1", Title: "a"},
		{UserID: "u2", Title: "b"},
	})
	if err := s.Notifications().SetRead(ctx, "u1", rows[1].ID, true); !errors.Is(err, dataspace.ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking someone else's notification, got %v", err)
	}
	if err := s.Notifications().SetRead(ctx, "u1", rows[0].ID, true); err != nil {
		t.Fatalf("SetRead: %v", err)
	}
	n, _ := s.Notifications().CountUnread(ctx, "u1")
	if n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}
	n, _ = s.Notifications().CountUnread(ctx, "u2")
	if n != 1 {
		t.Fatalf("expected 1 unread for u2, got %d", n)
	}
}

func TestDirectoryDeleteDropsRoles(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutUser(identity.User{ID: "u1", Email: "a@x.io"})
	s.AddRole(dataspace.RoleAssignment{UserID: "u1", Role: auth.RoleViewer})

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	roles, _ := s.Roles().RolesForUser(ctx, "u1")
	if len(roles) != 0 {
		t.Fatalf("expected roles removed, got %v", roles)
	}
	if err := s.DeleteUser(ctx, "u1"); !errors.Is(err, dataspace.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
