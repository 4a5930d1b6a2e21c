package pg

import (
	"context"
	"database/sql"
	"fmt"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/ids"
)

type notificationStore struct{ db *sql.DB }

// Insert writes all rows in one transaction so a fan-out is all or nothing.
func (n notificationStore) Insert(ctx context.Context, items []dataspace.Notification) ([]dataspace.Notification, error) {
	out := make([]dataspace.Notification, 0, len(items))
	if len(items) == 0 {
		return out, nil
	}
	dbtx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbtx.Rollback() }()

	for _, item := range items {
		if item.ID == "" {
			item.ID = ids.New()
		}
		if item.Type == "" {
			item.Type = dataspace.NotificationInfo
		}
		err := dbtx.QueryRowContext(ctx, `
			insert into notifications (id, user_id, organization_id, title, message, type, link, is_read)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
			returning created_at
		`, item.ID, item.UserID, nullIfEmpty(item.OrganizationID), item.Title, item.Message,
			string(item.Type), item.Link, item.IsRead).Scan(&item.CreatedAt)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, item)
	}
	if err := dbtx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (n notificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]dataspace.Notification, error) {
	rows, err := n.db.QueryContext(ctx, `
		select id, user_id, organization_id, title, message, type, link, is_read, created_at
		from notifications
		where user_id = $1 and ($2 = false or is_read = false)
		order by created_at desc, id desc
		limit $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.Notification{}
	for rows.Next() {
		var x dataspace.Notification
		var org sql.NullString
		if err := rows.Scan(&x.ID, &x.UserID, &org, &x.Title, &x.Message, &x.Type, &x.Link, &x.IsRead, &x.CreatedAt); err != nil {
			return nil, err
		}
		x.OrganizationID = org.String
		out = append(out, x)
	}
	return out, rows.Err()
}

func (n notificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var c int
	err := n.db.QueryRowContext(ctx, `select count(*) from notifications where user_id = $1 and is_read = false`, userID).Scan(&c)
	return c, err
}

func (n notificationStore) SetRead(ctx context.Context, userID, id string, read bool) error {
	res, err := n.db.ExecContext(ctx, `update notifications set is_read = $3 where id = $1 and user_id = $2`, id, userID, read)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: notification %s", dataspace.ErrNotFound, id)
	}
	return nil
}

func (n notificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := n.db.ExecContext(ctx, `update notifications set is_read = true where user_id = $1 and is_read = false`, userID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}
