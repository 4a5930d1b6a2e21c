package dataspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"procuredata.io/internal/auth"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Scoped is the request-scoped repository: every read and write is confined to
// rows the calling user owns or can see through organisation membership.
type Scoped struct {
	store  Store
	userID string
}

// NewScoped binds store to the calling user.
func NewScoped(store Store, userID string) (*Scoped, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthorized
	}
	return &Scoped{store: store, userID: userID}, nil
}

func (s *Scoped) UserID() string { return s.userID }

// Memberships lists the caller's organisations.
func (s *Scoped) Memberships(ctx context.Context) ([]Membership, error) {
	return s.store.Memberships().ListByUser(ctx, s.userID)
}

func (s *Scoped) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	return s.store.Notifications().ListForUser(ctx, s.userID, unreadOnly, clampLimit(limit))
}

func (s *Scoped) UnreadCount(ctx context.Context) (int, error) {
	return s.store.Notifications().CountUnread(ctx, s.userID)
}

func (s *Scoped) MarkRead(ctx context.Context, id string) error {
	return s.setRead(ctx, id, true)
}

func (s *Scoped) MarkUnread(ctx context.Context, id string) error {
	return s.setRead(ctx, id, false)
}

func (s *Scoped) MarkAllRead(ctx context.Context) (int, error) {
	return s.store.Notifications().MarkAllRead(ctx, s.userID)
}

func (s *Scoped) setRead(ctx context.Context, id string, read bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: notification id is required", ErrInvalidRequest)
	}
	return s.store.Notifications().SetRead(ctx, s.userID, id, read)
}

// Transaction returns a transaction visible to the caller: the requester or a
// member of any party organisation. Others get ErrNotFound.
func (s *Scoped) Transaction(ctx context.Context, id string) (DataTransaction, error) {
	tx, err := s.store.Transactions().Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return DataTransaction{}, err
	}
	if tx.RequestedBy == s.userID {
		return tx, nil
	}
	members, err := s.Memberships(ctx)
	if err != nil {
		return DataTransaction{}, err
	}
	for _, m := range members {
		switch m.OrganizationID {
		case tx.ConsumerOrgID, tx.SubjectOrgID, tx.HolderOrgID:
			return tx, nil
		}
	}
	return DataTransaction{}, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
}

// History returns the approval history of a visible transaction, oldest first.
func (s *Scoped) History(ctx context.Context, txID string) ([]ApprovalEntry, error) {
	tx, err := s.Transaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	return s.store.Transactions().History(ctx, tx.ID)
}

// AuditLogs lists an organisation's audit trail; the caller must belong to it.
func (s *Scoped) AuditLogs(ctx context.Context, orgID string, limit int) ([]AuditLog, error) {
	if err := s.requireOrg(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.AuditLogs().ListByOrganization(ctx, orgID, clampLimit(limit))
}

// GovernanceLogs lists an organisation's governance events; the caller must belong to it.
func (s *Scoped) GovernanceLogs(ctx context.Context, orgID string, limit int) ([]GovernanceLog, error) {
	if err := s.requireOrg(ctx, orgID); err != nil {
		return nil, err
	}
	return s.store.GovernanceLogs().ListByOrganization(ctx, orgID, clampLimit(limit))
}

func (s *Scoped) requireOrg(ctx context.Context, orgID string) error {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return fmt.Errorf("%w: organization id is required", ErrInvalidRequest)
	}
	ok, err := IsMember(ctx, s.store.Memberships(), s.userID, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ErrForbidden
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
