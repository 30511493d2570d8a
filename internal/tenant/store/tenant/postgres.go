package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"carepay/internal/tenant/models"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists tenants. The tenants table is the registry itself and is
// not subject to row-level security.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(t.ID), t.Name, string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, uuid.UUID(tenantID))
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Tenant) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(t.ID), t.Name, string(t.Status), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tenants
		WHERE status = 'active'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (*models.Tenant, error) {
	var (
		t      models.Tenant
		rawID  uuid.UUID
		status string
	)
	if err := row.Scan(&rawID, &t.Name, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ID = id.TenantID(rawID)
	t.Status = models.TenantStatus(status)
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	// pgx surfaces its own error type; fall back to the SQLSTATE interface it implements.
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == uniqueViolation
	}
	return false
}
