package models

import (
	"fmt"
	"strings"
	"time"

	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
)

// DocumentType identifies which verification rule set applies to a document.
type DocumentType string

const (
	DocumentTypeDriversLicense DocumentType = "drivers_license"
	DocumentTypeStateID        DocumentType = "state_id"
	DocumentTypePassport       DocumentType = "passport"
	DocumentTypeEBTCardFront   DocumentType = "ebt_card_front"
	DocumentTypeEBTCardBack    DocumentType = "ebt_card_back"
	DocumentTypeMedicaidCard   DocumentType = "medicaid_card"
	DocumentTypeOther          DocumentType = "other"
)

var documentTypes = []DocumentType{
	DocumentTypeDriversLicense,
	DocumentTypeStateID,
	DocumentTypePassport,
	DocumentTypeEBTCardFront,
	DocumentTypeEBTCardBack,
	DocumentTypeMedicaidCard,
	DocumentTypeOther,
}

// DocumentTypes lists every accepted document type.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// ParseDocumentType accepts the wire name of a document type, case-insensitively.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	for _, t := range documentTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported document_type %q", s))
}

func (t DocumentType) String() string { return string(t) }

// VerificationStatus is the outcome state of a document.
type VerificationStatus string

const (
	StatusPending     VerificationStatus = "pending"
	StatusVerified    VerificationStatus = "verified"
	StatusNeedsReview VerificationStatus = "needs_review"
	StatusRejected    VerificationStatus = "rejected"
	StatusExpired     VerificationStatus = "expired"
)

func (s VerificationStatus) String() string { return string(s) }

func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusNeedsReview, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether the worker has produced a result.
func (s VerificationStatus) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

// CanTransitionTo allows pending → terminal on normal processing and
// terminal → terminal only for an explicit re-verification. Nothing returns to pending.
func (s VerificationStatus) CanTransitionTo(next VerificationStatus, reverify bool) bool {
	if !next.IsTerminal() {
		return false
	}
	if s == StatusPending {
		return true
	}
	return reverify && s.IsTerminal()
}

// Verification is the result the worker records on a document.
type Verification struct {
	Status     VerificationStatus
	Confidence int
	Issues     []string
	VerifiedAt time.Time
}

// IdentityDocument is the metadata record for one uploaded document. The bytes live
// in the blob store under BlobKey and are never mutated after upload.
type IdentityDocument struct {
	ID              id.DocumentID
	TenantID        id.TenantID
	PatientID       id.PatientID
	DocumentType    DocumentType
	BlobKey         string
	ContentType     string
	SizeBytes       int64
	ExtractedFields ExtractedFields

	Status     VerificationStatus
	Confidence *int
	Issues     []string
	VerifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIdentityDocument builds a pending document.
func NewIdentityDocument(
	docID id.DocumentID,
	tenantID id.TenantID,
	patientID id.PatientID,
	docType DocumentType,
	blobKey string,
	contentType string,
	size int64,
	fields ExtractedFields,
	now time.Time,
) (*IdentityDocument, error) {
	if docID.IsNil() || tenantID.IsNil() || patientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document, tenant, and patient ids are required")
	}
	if blobKey == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "blob key is required")
	}
	if fields == nil {
		fields = ExtractedFields{}
	}
	return &IdentityDocument{
		ID:              docID,
		TenantID:        tenantID,
		PatientID:       patientID,
		DocumentType:    docType,
		BlobKey:         blobKey,
		ContentType:     contentType,
		SizeBytes:       size,
		ExtractedFields: fields,
		Status:          StatusPending,
		Issues:          []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ResultPredates reports whether the document holds a terminal result recorded before
// t. A zero t never matches.
func (d *IdentityDocument) ResultPredates(t time.Time) bool {
	if t.IsZero() || !d.Status.IsTerminal() {
		return false
	}
	return d.VerifiedAt == nil || d.VerifiedAt.Before(t)
}

// ApplyVerification records a result on the document. It is an overwrite of the
// verification fields, so applying the same result twice yields the same record.
// A terminal result is replaced only by a re-verification requested after it was
// recorded; reverifyRequestedAt is zero for a first verification.
func (d *IdentityDocument) ApplyVerification(v Verification, reverifyRequestedAt time.Time) error {
	if !d.Status.CanTransitionTo(v.Status, d.ResultPredates(reverifyRequestedAt)) {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("cannot transition verification status from %s to %s", d.Status, v.Status))
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return dErrors.New(dErrors.CodeInvariantViolation, "confidence must be between 0 and 100")
	}
	confidence := v.Confidence
	verifiedAt := v.VerifiedAt
	issues := make([]string, len(v.Issues))
	copy(issues, v.Issues)

	d.Status = v.Status
	d.Confidence = &confidence
	d.Issues = issues
	d.VerifiedAt = &verifiedAt
	d.UpdatedAt = v.VerifiedAt
	return nil
}

// Verification returns the recorded result, or false while pending.
func (d *IdentityDocument) Verification() (Verification, bool) {
	if !d.Status.IsTerminal() || d.Confidence == nil {
		return Verification{}, false
	}
	v := Verification{Status: d.Status, Confidence: *d.Confidence, Issues: d.Issues}
	if d.VerifiedAt != nil {
		v.VerifiedAt = *d.VerifiedAt
	}
	return v, true
}
