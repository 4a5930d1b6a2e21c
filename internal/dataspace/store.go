package dataspace

import (
	"context"

	"procuredata.io/internal/auth"
)

// Store is the privileged repository. It sees every row and is only handed to
// trusted services; per-request user access goes through Scoped.
type Store interface {
	Organizations() OrganizationStore
	Catalog() CatalogStore
	Transactions() TransactionStore
	Memberships() MembershipStore
	Roles() RoleStore
	Notifications() NotificationStore
	AuditLogs() AuditLogStore
	GovernanceLogs() GovernanceLogStore
}

type OrganizationStore interface {
	Get(ctx context.Context, id string) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
}

type CatalogStore interface {
	ListProducts(ctx context.Context) ([]DataProduct, error)
	ListAssets(ctx context.Context) ([]DataAsset, error)
	GetAsset(ctx context.Context, id string) (DataAsset, error)
}

// TransactionStore persists transactions and their approval history.
type TransactionStore interface {
	Create(ctx context.Context, tx *DataTransaction) error
	Get(ctx context.Context, id string) (DataTransaction, error)
	Details(ctx context.Context, id string) (TransactionDetails, error)
	// Transition moves id from -> to only if the stored status is still from, and
	// appends entry (when non-nil) atomically with the status change.
	Transition(ctx context.Context, id string, from, to Status, entry *ApprovalEntry) (DataTransaction, error)
	History(ctx context.Context, transactionID string) ([]ApprovalEntry, error)
	CountByRequester(ctx context.Context, userID string) (int, error)
	// ActivityByRequester returns, per requester, the total count and the perUser newest transactions.
	ActivityByRequester(ctx context.Context, perUser int) (map[string]RequesterActivity, error)
	// RecentApprovalsByActor returns at most perActor newest entries per actor, newest first.
	RecentApprovalsByActor(ctx context.Context, perActor int) ([]ApprovalEntry, error)
}

type MembershipStore interface {
	ListByUser(ctx context.Context, userID string) ([]Membership, error)
	ListByOrganization(ctx context.Context, orgID string) ([]Membership, error)
	ListAll(ctx context.Context) ([]Membership, error)
}

type RoleStore interface {
	auth.RoleSource
	ListAll(ctx context.Context) ([]RoleAssignment, error)
	ForUsers(ctx context.Context, userIDs []string) ([]RoleAssignment, error)
}

type NotificationStore interface {
	// Insert assigns ids and timestamps and returns the stored rows.
	Insert(ctx context.Context, items []Notification) ([]Notification, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	SetRead(ctx context.Context, userID, id string, read bool) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// AuditLogStore is append-only.
type AuditLogStore interface {
	Append(ctx context.Context, entry *AuditLog) error
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]AuditLog, error)
}

// GovernanceLogStore is append-only.
type GovernanceLogStore interface {
	Append(ctx context.Context, entry *GovernanceLog) error
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]GovernanceLog, error)
	RecentByUser(ctx context.Context, perUser int) ([]GovernanceLog, error)
}
