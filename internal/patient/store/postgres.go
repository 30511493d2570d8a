package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"carepay/internal/patient/models"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
	txcontext "carepay/pkg/platform/tx"
)

// PostgresStore reads patients through the scoped transaction when one is open.
// Queries always carry the tenant predicate in addition to row-level security.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Patient) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if p.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO patients (id, tenant_id, ref_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.UUID(p.ID), uuid.UUID(tenantID), string(p.RefID), p.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		var stateErr interface{ SQLState() string }
		if errors.As(err, &stateErr) && stateErr.SQLState() == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByRef(ctx context.Context, ref id.PatientRefID) (*models.Patient, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, tenant_id, ref_id, created_at
		FROM patients
		WHERE tenant_id = $1 AND ref_id = $2
	`, uuid.UUID(tenantID), string(ref))
	return scanPatient(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, tenant_id, ref_id, created_at
		FROM patients
		WHERE tenant_id = $1 AND id = $2
	`, uuid.UUID(tenantID), uuid.UUID(patientID))
	return scanPatient(row)
}

func scanPatient(row *sql.Row) (*models.Patient, error) {
	var (
		patientID, tenantID uuid.UUID
		ref                 string
		p                   models.Patient
	)
	if err := row.Scan(&patientID, &tenantID, &ref, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	p.ID = id.PatientID(patientID)
	p.TenantID = id.TenantID(tenantID)
	p.RefID = id.PatientRefID(ref)
	return &p, nil
}
