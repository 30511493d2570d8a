package handler

import (
	"time"

	"carepay/internal/identity/service"
)

type UploadResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// DocumentResponse is the external metadata view. It carries the patient reference
// instead of the internal patient id, and only the names of extracted fields.
type DocumentResponse struct {
	DocumentID             string     `json:"document_id"`
	PatientRefID           string     `json:"patient_ref_id"`
	DocumentType           string     `json:"document_type"`
	ContentType            string     `json:"content_type"`
	SizeBytes              int64      `json:"size_bytes"`
	ExtractedFieldKeys     []string   `json:"extracted_field_keys"`
	VerificationStatus     string     `json:"verification_status"`
	VerificationConfidence *int       `json:"verification_confidence,omitempty"`
	VerificationIssues     []string   `json:"verification_issues"`
	VerifiedAt             *time.Time `json:"verified_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type DownloadResponse struct {
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ReverifyResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

func toDocumentResponse(v *service.DocumentView) DocumentResponse {
	doc := v.Document
	issues := doc.Issues
	if issues == nil {
		issues = []string{}
	}
	resp := DocumentResponse{
		DocumentID:         doc.ID.String(),
		PatientRefID:       v.PatientRefID.String(),
		DocumentType:       doc.DocumentType.String(),
		ContentType:        doc.ContentType,
		SizeBytes:          doc.SizeBytes,
		ExtractedFieldKeys: doc.ExtractedFields.Keys(),
		VerificationStatus: doc.Status.String(),
		VerificationIssues: issues,
		VerifiedAt:         doc.VerifiedAt,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
	if doc.Status.IsTerminal() {
		resp.VerificationConfidence = doc.Confidence
	}
	return resp
}
