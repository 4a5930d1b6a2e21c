// Package admin implements the privileged user management used by data space
// owners: the aggregated user listing, organisation member listing and guarded
// account deletion.
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"procuredata.io/internal/audit"
	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
	"procuredata.io/internal/obs"
)

const (
	recentTransactions = 10
	recentApprovals    = 20
	recentGovernance   = 20
)

// UserOverview is one row of the admin user listing.
type UserOverview struct {
	ID                 string                      `json:"id"`
	Email              string                      `json:"email"`
	FullName           string                      `json:"full_name,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	LastSignInAt       *time.Time                  `json:"last_sign_in_at,omitempty"`
	Organizations      []dataspace.Membership      `json:"organizations"`
	Roles              []dataspace.RoleAssignment  `json:"roles"`
	TransactionCount   int                         `json:"transaction_count"`
	RecentTransactions []dataspace.DataTransaction `json:"recent_transactions"`
	ApprovalHistory    []dataspace.ApprovalEntry   `json:"approval_history"`
	GovernanceLogs     []dataspace.GovernanceLog   `json:"governance_logs"`
}

// Member is a user as listed for one organisation.
type Member struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Position string    `json:"position,omitempty"`
	Role     auth.Role `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

type Service struct {
	store      dataspace.Store
	directory  identity.Directory
	authorizer *auth.Authorizer
	recorder   *audit.Recorder
}

func NewService(store dataspace.Store, directory identity.Directory) *Service {
	return &Service{
		store:      store,
		directory:  directory,
		authorizer: auth.NewAuthorizer(store.Roles()),
		recorder:   audit.NewRecorder(store.AuditLogs()),
	}
}

// Authorize requires the caller to hold data_space_owner or admin.
func (s *Service) Authorize(ctx context.Context, callerID string) error {
	return s.authorizer.RequireAnyRole(ctx, callerID, auth.RoleDataSpaceOwner, auth.RoleAdmin)
}

// ListUsers merges every account with its memberships, roles and recent activity.
// The store queries run concurrently; the first failure cancels the rest.
func (s *Service) ListUsers(ctx context.Context) ([]UserOverview, error) {
	var (
		users       []identity.User
		memberships []dataspace.Membership
		roles       []dataspace.RoleAssignment
		activity    map[string]dataspace.RequesterActivity
		approvals   []dataspace.ApprovalEntry
		governance  []dataspace.GovernanceLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.directory.ListUsers(gctx)
		if err != nil {
			return fmt.Errorf("%w: list users: %v", dataspace.ErrUpstream, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		memberships, err = s.store.Memberships().ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		roles, err = s.store.Roles().ListAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		activity, err = s.store.Transactions().ActivityByRequester(gctx, recentTransactions)
		return err
	})
	g.Go(func() (err error) {
		approvals, err = s.store.Transactions().RecentApprovalsByActor(gctx, recentApprovals)
		return err
	})
	g.Go(func() (err error) {
		governance, err = s.store.GovernanceLogs().RecentByUser(gctx, recentGovernance)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byUser := make(map[string]*UserOverview, len(users))
	list := make([]UserOverview, len(users))
	for i, u := range users {
		list[i] = UserOverview{
			ID:                 u.ID,
			Email:              u.Email,
			FullName:           u.FullName,
			CreatedAt:          u.CreatedAt,
			LastSignInAt:       u.LastSignInAt,
			Organizations:      []dataspace.Membership{},
			Roles:              []dataspace.RoleAssignment{},
			RecentTransactions: []dataspace.DataTransaction{},
			ApprovalHistory:    []dataspace.ApprovalEntry{},
			GovernanceLogs:     []dataspace.GovernanceLog{},
		}
		byUser[u.ID] = &list[i]
	}
	for _, m := range memberships {
		if o := byUser[m.UserID]; o != nil {
			o.Organizations = append(o.Organizations, m)
			if o.FullName == "" {
				o.FullName = m.FullName
			}
		}
	}
	for _, r := range roles {
		if o := byUser[r.UserID]; o != nil {
			o.Roles = append(o.Roles, r)
		}
	}
	for uid, act := range activity {
		if o := byUser[uid]; o != nil {
			o.TransactionCount = act.Count
			o.RecentTransactions = append(o.RecentTransactions, act.Recent...)
		}
	}
	for _, a := range approvals {
		if o := byUser[a.ActorUserID]; o != nil && len(o.ApprovalHistory) < recentApprovals {
			o.ApprovalHistory = append(o.ApprovalHistory, a)
		}
	}
	for _, l := range governance {
		if o := byUser[l.UserID]; o != nil && len(o.GovernanceLogs) < recentGovernance {
			o.GovernanceLogs = append(o.GovernanceLogs, l)
		}
	}
	return list, nil
}

// ListMembers returns the members of one organisation with their account details.
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]Member, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: orgId is required", dataspace.ErrInvalidRequest)
	}
	memberships, err := s.store.Memberships().ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []Member{}, nil
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.UserID)
	}

	var (
		users map[string]identity.User
		roles []dataspace.RoleAssignment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.directory.GetUsers(gctx, ids)
		if err != nil {
			return fmt.Errorf("%w: resolve users: %v", dataspace.ErrUpstream, err)
		}
		return nil
	})
	g.Go(func() (err error) {
		roles, err = s.store.Roles().ForUsers(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		u := users[m.UserID]
		name := m.FullName
		if name == "" {
			name = u.FullName
		}
		out = append(out, Member{
			UserID:   m.UserID,
			Email:    u.Email,
			FullName: name,
			Position: m.Position,
			Role:     roleFor(roles, m.UserID, orgID),
			JoinedAt: m.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// roleFor prefers an assignment scoped to orgID over a global one.
func roleFor(roles []dataspace.RoleAssignment, userID, orgID string) auth.Role {
	var global auth.Role
	for _, r := range roles {
		if r.UserID != userID {
			continue
		}
		if r.OrganizationID == orgID {
			return r.Role
		}
		if r.OrganizationID == "" && global == "" {
			global = r.Role
		}
	}
	return global
}

// DeleteUser removes an account after the safety checks pass, in order: not a
// data space owner, no organisation memberships, no requested transactions.
func (s *Service) DeleteUser(ctx context.Context, callerID, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userId is required", dataspace.ErrInvalidRequest)
	}

	roles, err := s.store.Roles().RolesForUser(ctx, userID)
	if err != nil {
		return err
	}
	if auth.HasAnyRole(roles, auth.RoleDataSpaceOwner) {
		return fmt.Errorf("%w: cannot delete a data space owner", dataspace.ErrPrecondition)
	}
	memberships, err := s.store.Memberships().ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(memberships) > 0 {
		return fmt.Errorf("%w: user has active organization memberships", dataspace.ErrPrecondition)
	}
	n, err := s.store.Transactions().CountByRequester(ctx, userID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: user has linked transactions", dataspace.ErrPrecondition)
	}

	if err := s.directory.DeleteUser(ctx, userID); err != nil {
		if dataspace.IsNotFound(err) {
			return fmt.Errorf("%w: user not found", dataspace.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: delete user: %v", dataspace.ErrUpstream, err)
	}

	entry := dataspace.AuditLog{
		UserID:   callerID,
		Action:   "admin.user.delete",
		Resource: "user:" + userID,
		Details:  map[string]any{"deleted_user_id": userID},
	}
	if callerOrgs, err := s.store.Memberships().ListByUser(ctx, callerID); err == nil && len(callerOrgs) > 0 {
		entry.OrganizationID = callerOrgs[0].OrganizationID
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		obs.Logger().Warn("audit record failed",
			zap.String("action", entry.Action), zap.Error(err))
	}
	return nil
}
