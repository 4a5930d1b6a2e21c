package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
)

func scanUser(row rowScanner) (identity.User, error) {
	var u identity.User
	var last sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt, &last); err != nil {
		return identity.User{}, err
	}
	if last.Valid {
		t := last.Time
		u.LastSignInAt = &t
	}
	return u, nil
}

// ListUsers returns the local accounts, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]identity.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, full_name, created_at, last_sign_in_at
		from users
		order by created_at desc, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []identity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUsers(ctx context.Context, userIDs []string) (map[string]identity.User, error) {
	out := make(map[string]identity.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, email, full_name, created_at, last_sign_in_at
		from users
		where id = any(string_to_array($1, ','))
	`, idList(userIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// DeleteUser removes the account and its role grants.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: user id is required", dataspace.ErrInvalidRequest)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", dataspace.ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, id); err != nil {
		return mapError(err)
	}
	return tx.Commit()
}
