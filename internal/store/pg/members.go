package pg

import (
	"context"
	"database/sql"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/dataspace"
)

type membershipStore struct{ db *sql.DB }

const membershipQuery = `
	select up.user_id, up.organization_id, o.name, o.type, up.full_name, up.position, up.created_at
	from user_profiles up
	join organizations o on o.id = up.organization_id
`

func (m membershipStore) list(ctx context.Context, query string, args ...any) ([]dataspace.Membership, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.Membership{}
	for rows.Next() {
		var x dataspace.Membership
		if err := rows.Scan(&x.UserID, &x.OrganizationID, &x.OrganizationName, &x.OrganizationType,
			&x.FullName, &x.Position, &x.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (m membershipStore) ListByUser(ctx context.Context, userID string) ([]dataspace.Membership, error) {
	return m.list(ctx, membershipQuery+` where up.user_id = $1 order by up.created_at, up.organization_id`, userID)
}

func (m membershipStore) ListByOrganization(ctx context.Context, orgID string) ([]dataspace.Membership, error) {
	return m.list(ctx, membershipQuery+` where up.organization_id = $1 order by up.created_at, up.user_id`, orgID)
}

func (m membershipStore) ListAll(ctx context.Context) ([]dataspace.Membership, error) {
	return m.list(ctx, membershipQuery+` order by up.created_at, up.user_id`)
}

type roleStore struct{ db *sql.DB }

func (r roleStore) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, `select distinct role from user_roles where user_id = $1 order by role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r roleStore) list(ctx context.Context, query string, args ...any) ([]dataspace.RoleAssignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.RoleAssignment{}
	for rows.Next() {
		var a dataspace.RoleAssignment
		var org sql.NullString
		if err := rows.Scan(&a.UserID, &a.Role, &org, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.OrganizationID = org.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r roleStore) ListAll(ctx context.Context) ([]dataspace.RoleAssignment, error) {
	return r.list(ctx, `select user_id, role, organization_id, created_at from user_roles order by created_at, user_id`)
}

func (r roleStore) ForUsers(ctx context.Context, userIDs []string) ([]dataspace.RoleAssignment, error) {
	if len(userIDs) == 0 {
		return []dataspace.RoleAssignment{}, nil
	}
	return r.list(ctx, `
		select user_id, role, organization_id, created_at
		from user_roles
		where user_id = any(string_to_array($1, ','))
		order by created_at, user_id
	`, idList(userIDs))
}
