package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/ids"
)

type txStore struct{ db *sql.DB }

const txColumns = `id, asset_id, consumer_org_id, subject_org_id, holder_org_id, purpose, justification,
	access_duration_days, status, payment_status, requested_by, created_at, updated_at`

func scanTransaction(row rowScanner, extra ...any) (dataspace.DataTransaction, error) {
	var tx dataspace.DataTransaction
	dest := []any{
		&tx.ID, &tx.AssetID, &tx.ConsumerOrgID, &tx.SubjectOrgID, &tx.HolderOrgID, &tx.Purpose, &tx.Justification,
		&tx.AccessDurationDays, &tx.Status, &tx.PaymentStatus, &tx.RequestedBy, &tx.CreatedAt, &tx.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return dataspace.DataTransaction{}, err
	}
	return tx, nil
}

func (t txStore) Create(ctx context.Context, tx *dataspace.DataTransaction) error {
	if tx.ID == "" {
		tx.ID = ids.New()
	}
	if tx.PaymentStatus == "" {
		tx.PaymentStatus = dataspace.PaymentNotRequired
	}
	err := t.db.QueryRowContext(ctx, `
		insert into data_transactions (id, asset_id, consumer_org_id, subject_org_id, holder_org_id, purpose,
			justification, access_duration_days, status, payment_status, requested_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		returning created_at, updated_at
	`, tx.ID, tx.AssetID, tx.ConsumerOrgID, tx.SubjectOrgID, tx.HolderOrgID, tx.Purpose,
		tx.Justification, tx.AccessDurationDays, string(tx.Status), string(tx.PaymentStatus), tx.RequestedBy,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (t txStore) Get(ctx context.Context, id string) (dataspace.DataTransaction, error) {
	tx, err := scanTransaction(t.db.QueryRowContext(ctx, `select `+txColumns+` from data_transactions where id = $1`, id))
	if err != nil {
		return dataspace.DataTransaction{}, notFound(err, "transaction", id)
	}
	return tx, nil
}

func (t txStore) Details(ctx context.Context, id string) (dataspace.TransactionDetails, error) {
	var d dataspace.TransactionDetails
	var err error
	d.Transaction, err = scanTransaction(t.db.QueryRowContext(ctx, `
		select t.id, t.asset_id, t.consumer_org_id, t.subject_org_id, t.holder_org_id, t.purpose, t.justification,
			t.access_duration_days, t.status, t.payment_status, t.requested_by, t.created_at, t.updated_at,
			coalesce(p.name, ''), coalesce(c.name, ''), coalesce(s.name, ''), coalesce(h.name, '')
		from data_transactions t
		left join data_assets a on a.id = t.asset_id
		left join data_products p on p.id = a.product_id
		left join organizations c on c.id = t.consumer_org_id
		left join organizations s on s.id = t.subject_org_id
		left join organizations h on h.id = t.holder_org_id
		where t.id = $1
	`, id), &d.ProductName, &d.ConsumerOrgName, &d.SubjectOrgName, &d.HolderOrgName)
	if err != nil {
		return dataspace.TransactionDetails{}, notFound(err, "transaction", id)
	}
	return d, nil
}

// Transition is a compare-and-set on status; the approval row is written in
// the same database transaction.
func (t txStore) Transition(ctx context.Context, id string, from, to dataspace.Status, entry *dataspace.ApprovalEntry) (dataspace.DataTransaction, error) {
	if err := dataspace.ValidateTransition(from, to); err != nil {
		return dataspace.DataTransaction{}, err
	}
	dbtx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dataspace.DataTransaction{}, err
	}
	defer func() { _ = dbtx.Rollback() }()

	tx, err := scanTransaction(dbtx.QueryRowContext(ctx, `
		update data_transactions set status = $3, updated_at = now()
		where id = $1 and status = $2
		returning `+txColumns, id, string(from), string(to)))
	if errors.Is(err, sql.ErrNoRows) {
		var current string
		err = dbtx.QueryRowContext(ctx, `select status from data_transactions where id = $1`, id).Scan(&current)
		if err != nil {
			return dataspace.DataTransaction{}, notFound(err, "transaction", id)
		}
		return dataspace.DataTransaction{}, fmt.Errorf("%w: transaction %s is %s, expected %s", dataspace.ErrIllegalTransition, id, current, from)
	}
	if err != nil {
		return dataspace.DataTransaction{}, mapError(err)
	}

	if entry != nil {
		if entry.ID == "" {
			entry.ID = ids.New()
		}
		entry.TransactionID = id
		err = dbtx.QueryRowContext(ctx, `
			insert into approval_history (id, transaction_id, actor_user_id, actor_org_id, action, notes)
			values ($1, $2, $3, $4, $5, $6)
			returning created_at
		`, entry.ID, id, entry.ActorUserID, entry.ActorOrgID, string(entry.Action), entry.Notes).Scan(&entry.CreatedAt)
		if err != nil {
			return dataspace.DataTransaction{}, mapError(err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return dataspace.DataTransaction{}, err
	}
	return tx, nil
}

const approvalColumns = `id, transaction_id, actor_user_id, actor_org_id, action, notes, created_at`

func scanApproval(row rowScanner) (dataspace.ApprovalEntry, error) {
	var e dataspace.ApprovalEntry
	err := row.Scan(&e.ID, &e.TransactionID, &e.ActorUserID, &e.ActorOrgID, &e.Action, &e.Notes, &e.CreatedAt)
	return e, err
}

func (t txStore) History(ctx context.Context, transactionID string) ([]dataspace.ApprovalEntry, error) {
	rows, err := t.db.QueryContext(ctx, `
		select `+approvalColumns+`
		from approval_history
		where transaction_id = $1
		order by created_at, id
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.ApprovalEntry{}
	for rows.Next() {
		e, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t txStore) CountByRequester(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, `select count(*) from data_transactions where requested_by = $1`, userID).Scan(&n)
	return n, err
}

func (t txStore) ActivityByRequester(ctx context.Context, perUser int) (map[string]dataspace.RequesterActivity, error) {
	rows, err := t.db.QueryContext(ctx, `
		select `+txColumns+`, total
		from (
			select *,
				count(*) over (partition by requested_by) as total,
				row_number() over (partition by requested_by order by created_at desc, id desc) as rn
			from data_transactions
		) ranked
		where rn <= greatest($1, 1)
		order by requested_by, rn
	`, perUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]dataspace.RequesterActivity)
	for rows.Next() {
		var total int
		tx, err := scanTransaction(rows, &total)
		if err != nil {
			return nil, err
		}
		act := out[tx.RequestedBy]
		act.Count = total
		if len(act.Recent) < perUser {
			act.Recent = append(act.Recent, tx)
		}
		out[tx.RequestedBy] = act
	}
	return out, rows.Err()
}

func (t txStore) RecentApprovalsByActor(ctx context.Context, perActor int) ([]dataspace.ApprovalEntry, error) {
	rows, err := t.db.QueryContext(ctx, `
		select `+approvalColumns+`
		from (
			select *, row_number() over (partition by actor_user_id order by created_at desc, id desc) as rn
			from approval_history
		) ranked
		where rn <= $1
		order by created_at desc, id desc
	`, perActor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataspace.ApprovalEntry
	for rows.Next() {
		e, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
