package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carepay/internal/identity/models"
	id "carepay/pkg/domain"
)

// Job is the verification work item carried on the queue. It holds identifiers
// only; the worker loads everything else from the tenant-scoped store.
type Job struct {
	DocumentID   string `json:"document_id"`
	PatientID    string `json:"patient_id"`
	DocumentType string `json:"document_type"`
	TenantID     string `json:"tenant_id"`
	// Reverify marks an explicit re-verification of a terminal document.
	Reverify bool `json:"reverify,omitempty"`
	// RequestedAt is when the job was created. A re-verification only replaces a
	// result recorded before this instant, so redeliveries leave the row alone.
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

// NewJob builds the job for a stored document.
func NewJob(doc *models.IdentityDocument, reverify bool, requestedAt time.Time) Job {
	return Job{
		DocumentID:   doc.ID.String(),
		PatientID:    doc.PatientID.String(),
		DocumentType: doc.DocumentType.String(),
		TenantID:     doc.TenantID.String(),
		Reverify:     reverify,
		RequestedAt:  requestedAt.UTC(),
	}
}

// ParsedJob is a Job with validated identifiers.
type ParsedJob struct {
	DocumentID   id.DocumentID
	PatientID    id.PatientID
	DocumentType models.DocumentType
	TenantID     id.TenantID
	Reverify     bool
	RequestedAt  time.Time
}

// ReverifyRequestedAt is the instant a stored result must predate to be replaced.
// It is zero for first verifications.
func (j ParsedJob) ReverifyRequestedAt() time.Time {
	if !j.Reverify {
		return time.Time{}
	}
	return j.RequestedAt
}

// DecodeJob parses and validates a message body. Errors mean the message can
// never be processed.
func DecodeJob(body []byte) (ParsedJob, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return ParsedJob{}, fmt.Errorf("decode job: %w", err)
	}
	docID, err := id.ParseDocumentID(j.DocumentID)
	if err != nil {
		return ParsedJob{}, fmt.Errorf("job document_id: %w", err)
	}
	patientID, err := id.ParsePatientID(j.PatientID)
	if err != nil {
		return ParsedJob{}, fmt.Errorf("job patient_id: %w", err)
	}
	tenantID, err := id.ParseTenantID(j.TenantID)
	if err != nil {
		return ParsedJob{}, fmt.Errorf("job tenant_id: %w", err)
	}
	docType, err := models.ParseDocumentType(j.DocumentType)
	if err != nil {
		return ParsedJob{}, fmt.Errorf("job document_type: %w", err)
	}
	if j.Reverify && j.RequestedAt.IsZero() {
		return ParsedJob{}, errors.New("job requested_at is required for re-verification")
	}
	return ParsedJob{
		DocumentID:   docID,
		PatientID:    patientID,
		DocumentType: docType,
		TenantID:     tenantID,
		Reverify:     j.Reverify,
		RequestedAt:  j.RequestedAt,
	}, nil
}
