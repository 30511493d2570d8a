// Package store persists identity document metadata. Every operation reads the
// tenant from the context and fails closed without one.
package store

import "carepay/internal/identity/models"

func cloneDocument(d *models.IdentityDocument) *models.IdentityDocument {
	cp := *d
	cp.ExtractedFields = make(models.ExtractedFields, len(d.ExtractedFields))
	for k, v := range d.ExtractedFields {
		cp.ExtractedFields[k] = v
	}
	cp.Issues = append([]string{}, d.Issues...)
	if d.Confidence != nil {
		c := *d.Confidence
		cp.Confidence = &c
	}
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		cp.VerifiedAt = &t
	}
	return &cp
}
