package pg

import (
	"context"
	"database/sql"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/ids"
)

type auditStore struct{ db *sql.DB }

func (a auditStore) Append(ctx context.Context, e *dataspace.AuditLog) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	details, err := jsonArg(e.Details)
	if err != nil {
		return err
	}
	err = a.db.QueryRowContext(ctx, `
		insert into audit_logs (id, organization_id, user_id, user_email, action, resource, details, ip_address)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at
	`, e.ID, e.OrganizationID, e.UserID, e.UserEmail, e.Action, e.Resource, details, e.IPAddress).Scan(&e.CreatedAt)
	return mapError(err)
}

func (a auditStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]dataspace.AuditLog, error) {
	rows, err := a.db.QueryContext(ctx, `
		select id, organization_id, user_id, user_email, action, resource, details, ip_address, created_at
		from audit_logs
		where organization_id = $1
		order by created_at desc, id desc
		limit $2
	`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.AuditLog{}
	for rows.Next() {
		var e dataspace.AuditLog
		var details []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.UserID, &e.UserEmail, &e.Action, &e.Resource,
			&details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Details, err = jsonMap(details); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type governanceStore struct{ db *sql.DB }

const governanceColumns = `id, organization_id, transaction_id, user_id, level, category, message, metadata, created_at`

func scanGovernance(row rowScanner) (dataspace.GovernanceLog, error) {
	var e dataspace.GovernanceLog
	var org, txID sql.NullString
	var meta []byte
	if err := row.Scan(&e.ID, &org, &txID, &e.UserID, &e.Level, &e.Category, &e.Message, &meta, &e.CreatedAt); err != nil {
		return dataspace.GovernanceLog{}, err
	}
	e.OrganizationID = org.String
	e.TransactionID = txID.String
	m, err := jsonMap(meta)
	if err != nil {
		return dataspace.GovernanceLog{}, err
	}
	e.Metadata = m
	return e, nil
}

func (g governanceStore) Append(ctx context.Context, e *dataspace.GovernanceLog) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.Level == "" {
		e.Level = dataspace.LevelInfo
	}
	meta, err := jsonArg(e.Metadata)
	if err != nil {
		return err
	}
	err = g.db.QueryRowContext(ctx, `
		insert into governance_logs (id, organization_id, transaction_id, user_id, level, category, message, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at
	`, e.ID, nullIfEmpty(e.OrganizationID), nullIfEmpty(e.TransactionID), e.UserID, string(e.Level),
		e.Category, e.Message, meta).Scan(&e.CreatedAt)
	return mapError(err)
}

func (g governanceStore) list(ctx context.Context, query string, args ...any) ([]dataspace.GovernanceLog, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.GovernanceLog{}
	for rows.Next() {
		e, err := scanGovernance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g governanceStore) ListByOrganization(ctx context.Context, orgID string, limit int) ([]dataspace.GovernanceLog, error) {
	return g.list(ctx, `
		select `+governanceColumns+`
		from governance_logs
		where organization_id = $1
		order by created_at desc, id desc
		limit $2
	`, orgID, limit)
}

func (g governanceStore) RecentByUser(ctx context.Context, perUser int) ([]dataspace.GovernanceLog, error) {
	return g.list(ctx, `
		select `+governanceColumns+`
		from (
			select *, row_number() over (partition by user_id order by created_at desc, id desc) as rn
			from governance_logs
			where user_id <> ''
		) ranked
		where rn <= $1
		order by created_at desc, id desc
	`, perUser)
}
