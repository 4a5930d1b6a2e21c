// Package pg implements the dataspace store contracts and the local identity
// directory on PostgreSQL through the pgx database/sql driver.
package pg

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/identity"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrRaiseException      = "P0001"
)

type Store struct {
	db *sql.DB
}

var (
	_ dataspace.Store    = (*Store)(nil)
	_ identity.Directory = (*Store)(nil)
)

// Open connects with the pgx driver. maxOpen <= 0 keeps the default pool size.
func Open(dsn string, maxOpen int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 50
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle, as used by tests.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Organizations() dataspace.OrganizationStore { return orgStore{s.db} }
func (s *Store) Catalog() dataspace.CatalogStore { return catalogStore{s.db} }
func (s *Store) Transactions() dataspace.TransactionStore { return txStore{s.db} }
func (s *Store) Memberships() dataspace.MembershipStore { return membershipStore{s.db} }
func (s *Store) Roles() dataspace.RoleStore { return roleStore{s.db} }
func (s *Store) Notifications() dataspace.NotificationStore { return notificationStore{s.db} }
func (s *Store) AuditLogs() dataspace.AuditLogStore { return auditStore{s.db} }
func (s *Store) GovernanceLogs() dataspace.GovernanceLogStore { return governanceStore{s.db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError translates constraint and trigger failures into domain errors.
func mapError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: %s", dataspace.ErrConflict, pgErr.Message)
	case pgErrForeignKeyViolation:
		return fmt.Errorf("%w: %s", dataspace.ErrNotFound, pgErr.Message)
	case pgErrCheckViolation:
		return fmt.Errorf("%w: %s", dataspace.ErrInvalidRequest, pgErr.Message)
	case pgErrRaiseException:
		return fmt.Errorf("%w: %s", dataspace.ErrPrecondition, pgErr.Message)
	}
	return err
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", dataspace.ErrNotFound, what, id)
	}
	return err
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonArg encodes a map for a jsonb column; empty maps are stored as null.
func jsonArg(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func jsonMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// idList passes a set of ids as one parameter, expanded server-side with string_to_array.
func idList(ids []string) string {
	return strings.Join(ids, ",")
}
