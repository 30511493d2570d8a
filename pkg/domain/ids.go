// Package domain holds typed identifiers shared across modules.
//
// Each identifier is a distinct named type over uuid.UUID so a PatientID can never
// be passed where a DocumentID is expected. Construct them with the Parse functions
// at trust boundaries (HTTP handlers, queue payloads); direct casting skips validation.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "carepay/pkg/domain-errors"
)

type (
	TenantID   uuid.UUID
	PatientID  uuid.UUID
	DocumentID uuid.UUID
)

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id PatientID) String() string  { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewDocumentID returns a fresh random document identifier.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant_id")
	return TenantID(u), err
}

func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID(s, "patient_id")
	return PatientID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document_id")
	return DocumentID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

// PatientRefID is the public-safe patient reference used in every external payload
// and event body. The internal PatientID never leaves the service boundary.
//
// Invariant: 1..64 characters drawn from [A-Za-z0-9_-].
type PatientRefID string

const maxPatientRefLen = 64

// ParsePatientRefID validates an external patient reference.
func ParsePatientRefID(s string) (PatientRefID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "patient_ref_id is required")
	}
	if len(s) > maxPatientRefLen {
		return "", dErrors.New(dErrors.CodeValidation, "patient_ref_id must be at most 64 characters")
	}
	for _, r := range s {
		if !isRefRune(r) {
			return "", dErrors.New(dErrors.CodeValidation, "patient_ref_id contains invalid characters")
		}
	}
	return PatientRefID(s), nil
}

func isRefRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

func (r PatientRefID) String() string { return string(r) }
