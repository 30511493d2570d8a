package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"carepay/internal/identity/models"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
	txcontext "carepay/pkg/platform/tx"
)

const documentColumns = `
	id, tenant_id, patient_id, document_type, blob_key, content_type, size_bytes,
	extracted_fields::text, verification_status, verification_confidence,
	COALESCE(to_json(verification_issues)::text, '[]'), verified_at, created_at, updated_at`

// PostgresStore persists identity documents. Every query carries the tenant
// predicate; row-level security enforces the same boundary underneath.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, doc *models.IdentityDocument) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if doc.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	fields, err := json.Marshal(doc.ExtractedFields)
	if err != nil {
		return fmt.Errorf("marshal extracted fields: %w", err)
	}
	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO identity_documents (
			id, tenant_id, patient_id, document_type, blob_key, content_type, size_bytes,
			extracted_fields, verification_status, verification_issues, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10::text[], $11, $12)
	`,
		uuid.UUID(doc.ID), uuid.UUID(tenantID), uuid.UUID(doc.PatientID),
		string(doc.DocumentType), doc.BlobKey, doc.ContentType, doc.SizeBytes,
		string(fields), string(models.StatusPending), pq.Array(doc.Issues),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM identity_documents WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(docID))
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM identity_documents
		 WHERE tenant_id = $1 AND patient_id = $2
		 ORDER BY created_at DESC, id`,
		uuid.UUID(tenantID), uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("list identity documents: %w", err)
	}
	return collectDocuments(rows)
}

// ApplyVerification writes the result in a single conditional UPDATE so concurrent
// deliveries of the same job cannot move a terminal row. A terminal row is rewritten
// only when its result predates reverifyRequestedAt.
func (s *PostgresStore) ApplyVerification(ctx context.Context, docID id.DocumentID, v models.Verification, reverifyRequestedAt time.Time) (*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !v.Status.IsTerminal() {
		return nil, sentinel.ErrInvalidState
	}
	issues := v.Issues
	if issues == nil {
		issues = []string{}
	}
	var requestedAt sql.NullTime
	if !reverifyRequestedAt.IsZero() {
		requestedAt = sql.NullTime{Time: reverifyRequestedAt, Valid: true}
	}
	q := txcontext.Pick(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		UPDATE identity_documents SET
			verification_status = $3,
			verification_confidence = $4,
			verification_issues = $5::text[],
			verified_at = $6,
			updated_at = $6
		WHERE tenant_id = $1 AND id = $2
		  AND (verification_status = 'pending'
		       OR ($7::timestamptz IS NOT NULL AND (verified_at IS NULL OR verified_at < $7::timestamptz)))
		RETURNING `+documentColumns,
		uuid.UUID(tenantID), uuid.UUID(docID), string(v.Status), v.Confidence,
		pq.Array(issues), v.VerifiedAt, requestedAt,
	)
	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("apply verification: %w", err)
	}

	// Nothing updated: either the row is missing or it is already terminal.
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM identity_documents WHERE tenant_id = $1 AND id = $2)`,
		uuid.UUID(tenantID), uuid.UUID(docID)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check identity document: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM identity_documents
		 WHERE tenant_id = $1 AND verification_status = 'pending' AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		uuid.UUID(tenantID), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending documents: %w", err)
	}
	return collectDocuments(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func collectDocuments(rows *sql.Rows) ([]*models.IdentityDocument, error) {
	defer rows.Close()
	out := []*models.IdentityDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity documents: %w", err)
	}
	return out, nil
}

func scanDocument(row scanner) (*models.IdentityDocument, error) {
	var (
		doc                        models.IdentityDocument
		docID, tenantID, patientID uuid.UUID
		docType, status            string
		fieldsJSON, issuesJSON     string
		confidence                 sql.NullInt64
		verifiedAt                 sql.NullTime
	)
	if err := row.Scan(
		&docID, &tenantID, &patientID, &docType, &doc.BlobKey, &doc.ContentType, &doc.SizeBytes,
		&fieldsJSON, &status, &confidence, &issuesJSON, &verifiedAt, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.TenantID = id.TenantID(tenantID)
	doc.PatientID = id.PatientID(patientID)
	doc.DocumentType = models.DocumentType(docType)
	doc.Status = models.VerificationStatus(status)
	if err := json.Unmarshal([]byte(fieldsJSON), &doc.ExtractedFields); err != nil {
		return nil, fmt.Errorf("decode extracted fields: %w", err)
	}
	if doc.ExtractedFields == nil {
		doc.ExtractedFields = models.ExtractedFields{}
	}
	if err := json.Unmarshal([]byte(issuesJSON), &doc.Issues); err != nil {
		return nil, fmt.Errorf("decode verification issues: %w", err)
	}
	if doc.Issues == nil {
		doc.Issues = []string{}
	}
	if confidence.Valid {
		c := int(confidence.Int64)
		doc.Confidence = &c
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		doc.VerifiedAt = &t
	}
	return &doc, nil
}
