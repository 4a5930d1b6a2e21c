package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"procuredata.io/internal/dataspace"
)

type orgStore struct{ db *sql.DB }

func (o orgStore) Get(ctx context.Context, id string) (dataspace.Organization, error) {
	var org dataspace.Organization
	err := o.db.QueryRowContext(ctx, `
		select id, name, tax_id, type, created_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.TaxID, &org.Type, &org.CreatedAt)
	if err != nil {
		return dataspace.Organization{}, notFound(err, "organization", id)
	}
	return org, nil
}

func (o orgStore) List(ctx context.Context) ([]dataspace.Organization, error) {
	rows, err := o.db.QueryContext(ctx, `
		select id, name, tax_id, type, created_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.Organization{}
	for rows.Next() {
		var org dataspace.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.TaxID, &org.Type, &org.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

type catalogStore struct{ db *sql.DB }

func (c catalogStore) ListProducts(ctx context.Context) ([]dataspace.DataProduct, error) {
	rows, err := c.db.QueryContext(ctx, `
		select id, name, description, category, schema_definition, version, created_at
		from data_products
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.DataProduct{}
	for rows.Next() {
		var p dataspace.DataProduct
		var schema []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &schema, &p.Version, &p.CreatedAt); err != nil {
			return nil, err
		}
		if len(schema) > 0 {
			p.SchemaDefinition = json.RawMessage(schema)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const assetColumns = `id, product_id, subject_org_id, holder_org_id, status, custom_metadata, created_at`

func scanAsset(row rowScanner) (dataspace.DataAsset, error) {
	var a dataspace.DataAsset
	var meta []byte
	if err := row.Scan(&a.ID, &a.ProductID, &a.SubjectOrgID, &a.HolderOrgID, &a.Status, &meta, &a.CreatedAt); err != nil {
		return dataspace.DataAsset{}, err
	}
	m, err := jsonMap(meta)
	if err != nil {
		return dataspace.DataAsset{}, err
	}
	a.CustomMetadata = m
	return a, nil
}

func (c catalogStore) ListAssets(ctx context.Context) ([]dataspace.DataAsset, error) {
	rows, err := c.db.QueryContext(ctx, `select `+assetColumns+` from data_assets order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataspace.DataAsset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c catalogStore) GetAsset(ctx context.Context, id string) (dataspace.DataAsset, error) {
	a, err := scanAsset(c.db.QueryRowContext(ctx, `select `+assetColumns+` from data_assets where id = $1`, id))
	if err != nil {
		return dataspace.DataAsset{}, notFound(err, "asset", id)
	}
	return a, nil
}
