// Package memory is an in-process implementation of the dataspace store
// contracts and the identity directory, used in dev mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
	"procuredata.io/internal/ids"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	orgs          map[string]dataspace.Organization
	products      map[string]dataspace.DataProduct
	assets        map[string]dataspace.DataAsset
	transactions  map[string]dataspace.DataTransaction
	approvals     []dataspace.ApprovalEntry
	memberships   []dataspace.Membership
	roles         []dataspace.RoleAssignment
	notifications []dataspace.Notification
	auditLogs     []dataspace.AuditLog
	govLogs       []dataspace.GovernanceLog
	users         map[string]identity.User

	now func() time.Time
}

var (
	_ dataspace.Store    = (*Store)(nil)
	_ identity.Directory = (*Store)(nil)
)

func New() *Store {
	return &Store{
		orgs:         make(map[string]dataspace.Organization),
		products:     make(map[string]dataspace.DataProduct),
		assets:       make(map[string]dataspace.DataAsset),
		transactions: make(map[string]dataspace.DataTransaction),
		users:        make(map[string]identity.User),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Organizations() dataspace.OrganizationStore { return orgStore{s} }
func (s *Store) Catalog() dataspace.CatalogStore { return catalogStore{s} }
func (s *Store) Transactions() dataspace.TransactionStore { return txStore{s} }
func (s *Store) Memberships() dataspace.MembershipStore { return membershipStore{s} }
func (s *Store) Roles() dataspace.RoleStore { return roleStore{s} }
func (s *Store) Notifications() dataspace.NotificationStore { return notificationStore{s} }
func (s *Store) AuditLogs() dataspace.AuditLogStore { return auditStore{s} }
func (s *Store) GovernanceLogs() dataspace.GovernanceLogStore { return governanceStore{s} }

// Seeding helpers. They overwrite rows with the same key.

func (s *Store) PutOrganization(o dataspace.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	s.orgs[o.ID] = o
}

func (s *Store) PutProduct(p dataspace.DataProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.products[p.ID] = p
}

func (s *Store) PutAsset(a dataspace.DataAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.assets[a.ID] = a
}

func (s *Store) PutUser(u identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
}

// AddMembership creates a user_profiles row; organisation name and type are filled from the org.
func (s *Store) AddMembership(m dataspace.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orgs[m.OrganizationID]; ok {
		m.OrganizationName = o.Name
		m.OrganizationType = o.Type
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.memberships = append(s.memberships, m)
}

func (s *Store) AddRole(r dataspace.RoleAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.roles = append(s.roles, r)
}

// --- organizations ---

type orgStore struct{ s *Store }

func (o orgStore) Get(_ context.Context, id string) (dataspace.Organization, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	org, ok := o.s.orgs[id]
	if !ok {
		return dataspace.Organization{}, fmt.Errorf("%w: organization %s", dataspace.ErrNotFound, id)
	}
	return org, nil
}

func (o orgStore) List(_ context.Context) ([]dataspace.Organization, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	out := make([]dataspace.Organization, 0, len(o.s.orgs))
	for _, org := range o.s.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- catalog ---

type catalogStore struct{ s *Store }

func (c catalogStore) ListProducts(_ context.Context) ([]dataspace.DataProduct, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]dataspace.DataProduct, 0, len(c.s.products))
	for _, p := range c.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c catalogStore) ListAssets(_ context.Context) ([]dataspace.DataAsset, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]dataspace.DataAsset, 0, len(c.s.assets))
	for _, a := range c.s.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c catalogStore) GetAsset(_ context.Context, id string) (dataspace.DataAsset, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	a, ok := c.s.assets[id]
	if !ok {
		return dataspace.DataAsset{}, fmt.Errorf("%w: asset %s", dataspace.ErrNotFound, id)
	}
	return a, nil
}

// --- transactions ---

type txStore struct{ s *Store }

func (t txStore) Create(_ context.Context, tx *dataspace.DataTransaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = ids.New()
	}
	if _, exists := t.s.transactions[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s already exists", dataspace.ErrConflict, tx.ID)
	}
	if _, ok := t.s.assets[tx.AssetID]; !ok {
		return fmt.Errorf("%w: asset %s", dataspace.ErrNotFound, tx.AssetID)
	}
	now := t.s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = tx.CreatedAt
	t.s.transactions[tx.ID] = *tx
	return nil
}

func (t txStore) Get(_ context.Context, id string) (dataspace.DataTransaction, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tx, ok := t.s.transactions[id]
	if !ok {
		return dataspace.DataTransaction{}, fmt.Errorf("%w: transaction %s", dataspace.ErrNotFound, id)
	}
	return tx, nil
}

func (t txStore) Details(_ context.Context, id string) (dataspace.TransactionDetails, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tx, ok := t.s.transactions[id]
	if !ok {
		return dataspace.TransactionDetails{}, fmt.Errorf("%w: transaction %s", dataspace.ErrNotFound, id)
	}
	d := dataspace.TransactionDetails{
		Transaction:     tx,
		ConsumerOrgName: t.s.orgs[tx.ConsumerOrgID].Name,
		SubjectOrgName:  t.s.orgs[tx.SubjectOrgID].Name,
		HolderOrgName:   t.s.orgs[tx.HolderOrgID].Name,
	}
	if a, ok := t.s.assets[tx.AssetID]; ok {
		d.ProductName = t.s.products[a.ProductID].Name
	}
	return d, nil
}

func (t txStore) Transition(_ context.Context, id string, from, to dataspace.Status, entry *dataspace.ApprovalEntry) (dataspace.DataTransaction, error) {
	if err := dataspace.ValidateTransition(from, to); err != nil {
		return dataspace.DataTransaction{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tx, ok := t.s.transactions[id]
	if !ok {
		return dataspace.DataTransaction{}, fmt.Errorf("%w: transaction %s", dataspace.ErrNotFound, id)
	}
	if tx.Status != from {
		return dataspace.DataTransaction{}, fmt.Errorf("%w: transaction %s is %s, expected %s", dataspace.ErrIllegalTransition, id, tx.Status, from)
	}
	tx.Status = to
	tx.UpdatedAt = t.s.now()
	t.s.transactions[id] = tx
	if entry != nil {
		e := *entry
		if e.ID == "" {
			e.ID = ids.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = tx.UpdatedAt
		}
		e.TransactionID = id
		t.s.approvals = append(t.s.approvals, e)
	}
	return tx, nil
}

func (t txStore) History(_ context.Context, transactionID string) ([]dataspace.ApprovalEntry, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := []dataspace.ApprovalEntry{}
	for _, e := range t.s.approvals {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t txStore) CountByRequester(_ context.Context, userID string) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	n := 0
	for _, tx := range t.s.transactions {
		if tx.RequestedBy == userID {
			n++
		}
	}
	return n, nil
}

func (t txStore) ActivityByRequester(_ context.Context, perUser int) (map[string]dataspace.RequesterActivity, error) {
	t.s.mu.RLock()
	all := make([]dataspace.DataTransaction, 0, len(t.s.transactions))
	for _, tx := range t.s.transactions {
		all = append(all, tx)
	}
	t.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return newer(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	out := make(map[string]dataspace.RequesterActivity)
	for _, tx := range all {
		act := out[tx.RequestedBy]
		act.Count++
		if len(act.Recent) < perUser {
			act.Recent = append(act.Recent, tx)
		}
		out[tx.RequestedBy] = act
	}
	return out, nil
}

func (t txStore) RecentApprovalsByActor(_ context.Context, perActor int) ([]dataspace.ApprovalEntry, error) {
	t.s.mu.RLock()
	all := append([]dataspace.ApprovalEntry(nil), t.s.approvals...)
	t.s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return newer(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID) })
	counts := make(map[string]int)
	var out []dataspace.ApprovalEntry
	for _, e := range all {
		if counts[e.ActorUserID] >= perActor {
			continue
		}
		counts[e.ActorUserID]++
		out = append(out, e)
	}
	return out, nil
}

// --- memberships ---

type membershipStore struct{ s *Store }

func (m membershipStore) ListByUser(_ context.Context, userID string) ([]dataspace.Membership, error) {
	return m.filter(func(x dataspace.Membership) bool { return x.UserID == userID }), nil
}

func (m membershipStore) ListByOrganization(_ context.Context, orgID string) ([]dataspace.Membership, error) {
	return m.filter(func(x dataspace.Membership) bool { return x.OrganizationID == orgID }), nil
}

func (m membershipStore) ListAll(_ context.Context) ([]dataspace.Membership, error) {
	return m.filter(func(dataspace.Membership) bool { return true }), nil
}

func (m membershipStore) filter(keep func(dataspace.Membership) bool) []dataspace.Membership {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := []dataspace.Membership{}
	for _, x := range m.s.memberships {
		if keep(x) {
			out = append(out, x)
		}
	}
	return out
}

// --- roles ---

type roleStore struct{ s *Store }

func (r roleStore) RolesForUser(_ context.Context, userID string) ([]auth.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[auth.Role]bool)
	var out []auth.Role
	for _, a := range r.s.roles {
		if a.UserID == userID && !seen[a.Role] {
			seen[a.Role] = true
			out = append(out, a.Role)
		}
	}
	return out, nil
}

func (r roleStore) ListAll(_ context.Context) ([]dataspace.RoleAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]dataspace.RoleAssignment{}, r.s.roles...), nil
}

func (r roleStore) ForUsers(_ context.Context, userIDs []string) ([]dataspace.RoleAssignment, error) {
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []dataspace.RoleAssignment{}
	for _, a := range r.s.roles {
		if want[a.UserID] {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- notifications ---

type notificationStore struct{ s *Store }

func (n notificationStore) Insert(_ context.Context, items []dataspace.Notification) ([]dataspace.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	out := make([]dataspace.Notification, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = ids.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = n.s.now()
		}
		n.s.notifications = append(n.s.notifications, item)
		out = append(out, item)
	}
	return out, nil
}

func (n notificationStore) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]dataspace.Notification, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	out := []dataspace.Notification{}
	for i := len(n.s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		x := n.s.notifications[i]
		if x.UserID != userID || (unreadOnly && x.IsRead) {
			continue
		}
		out = append(out, x)
	}
	return out, nil
}

func (n notificationStore) CountUnread(_ context.Context, userID string) (int, error) {
	n.s.mu.RLock()
	defer n.s.mu.RUnlock()
	c := 0
	for _, x := range n.s.notifications {
		if x.UserID == userID && !x.IsRead {
			c++
		}
	}
	return c, nil
}

func (n notificationStore) SetRead(_ context.Context, userID, id string, read bool) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	for i := range n.s.notifications {
		if n.s.notifications[i].ID == id && n.s.notifications[i].UserID == userID {
			n.s.notifications[i].IsRead = read
			return nil
		}
	}
	return fmt.Errorf("%w: notification %s", dataspace.ErrNotFound, id)
}

func (n notificationStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	c := 0
	for i := range n.s.notifications {
		if n.s.notifications[i].UserID == userID && !n.s.notifications[i].IsRead {
			n.s.notifications[i].IsRead = true
			c++
		}
	}
	return c, nil
}

// --- audit & governance logs ---

type auditStore struct{ s *Store }

func (a auditStore) Append(_ context.Context, e *dataspace.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = a.s.now()
	}
	a.s.auditLogs = append(a.s.auditLogs, *e)
	return nil
}

func (a auditStore) ListByOrganization(_ context.Context, orgID string, limit int) ([]dataspace.AuditLog, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := []dataspace.AuditLog{}
	for i := len(a.s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if a.s.auditLogs[i].OrganizationID == orgID {
			out = append(out, a.s.auditLogs[i])
		}
	}
	return out, nil
}

type governanceStore struct{ s *Store }

func (g governanceStore) Append(_ context.Context, e *dataspace.GovernanceLog) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.s.now()
	}
	g.s.govLogs = append(g.s.govLogs, *e)
	return nil
}

func (g governanceStore) ListByOrganization(_ context.Context, orgID string, limit int) ([]dataspace.GovernanceLog, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	out := []dataspace.GovernanceLog{}
	for i := len(g.s.govLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if g.s.govLogs[i].OrganizationID == orgID {
			out = append(out, g.s.govLogs[i])
		}
	}
	return out, nil
}

func (g governanceStore) RecentByUser(_ context.Context, perUser int) ([]dataspace.GovernanceLog, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()
	counts := make(map[string]int)
	var out []dataspace.GovernanceLog
	for i := len(g.s.govLogs) - 1; i >= 0; i-- {
		e := g.s.govLogs[i]
		if e.UserID == "" || counts[e.UserID] >= perUser {
			continue
		}
		counts[e.UserID]++
		out = append(out, e)
	}
	return out, nil
}

// --- identity.Directory ---

func (s *Store) ListUsers(_ context.Context) ([]identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetUsers(_ context.Context, userIDs []string) (map[string]identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]identity.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: user id is required", dataspace.ErrInvalidRequest)
	}
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("%w: user %s", dataspace.ErrNotFound, id)
	}
	delete(s.users, id)
	kept := s.roles[:0]
	for _, r := range s.roles {
		if r.UserID != id {
			kept = append(kept, r)
		}
	}
	s.roles = kept
	return nil
}

func newer(at time.Time, aid string, bt time.Time, bid string) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return aid > bid
}
