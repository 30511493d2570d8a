// Package events publishes PHI-safe identity document events. Payloads carry
// identifiers and enums only; extracted field values and document bytes never
// leave the service through this channel.
package events

import (
	"time"

	"github.com/google/uuid"

	"carepay/internal/identity/models"
	id "carepay/pkg/domain"
)

type Type string

const (
	TypeIdentityDocumentUploaded Type = "IdentityDocumentUploaded"
	TypeIdentityDocumentVerified Type = "IdentityDocumentVerified"
)

// StatusStored is the upload acknowledgement status.
const StatusStored = "stored"

// Event is the wire envelope. Status is set on upload events and
// VerificationStatus on verification events.
type Event struct {
	EventID            string    `json:"event_id"`
	EventType          Type      `json:"event_type"`
	TenantID           string    `json:"tenant_id"`
	DocumentID         string    `json:"document_id"`
	PatientRefID       string    `json:"patient_ref_id"`
	DocumentType       string    `json:"document_type"`
	Status             string    `json:"status,omitempty"`
	VerificationStatus string    `json:"verification_status,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Key partitions events by document so a document's events stay ordered.
func (e Event) Key() string { return e.DocumentID }

func DocumentUploaded(doc *models.IdentityDocument, ref id.PatientRefID, at time.Time) Event {
	return Event{
		EventID:      uuid.NewString(),
		EventType:    TypeIdentityDocumentUploaded,
		TenantID:     doc.TenantID.String(),
		DocumentID:   doc.ID.String(),
		PatientRefID: ref.String(),
		DocumentType: doc.DocumentType.String(),
		Status:       StatusStored,
		Timestamp:    at.UTC(),
	}
}

func DocumentVerified(doc *models.IdentityDocument, ref id.PatientRefID, at time.Time) Event {
	return Event{
		EventID:            uuid.NewString(),
		EventType:          TypeIdentityDocumentVerified,
		TenantID:           doc.TenantID.String(),
		DocumentID:         doc.ID.String(),
		PatientRefID:       ref.String(),
		DocumentType:       doc.DocumentType.String(),
		VerificationStatus: doc.Status.String(),
		Timestamp:          at.UTC(),
	}
}
