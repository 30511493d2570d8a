package models

import (
	"time"

	id "carepay/pkg/domain"
)

// Patient belongs to exactly one tenant. ID is internal and never leaves the
// service boundary; RefID is the public-safe reference used in payloads and events.
type Patient struct {
	ID        id.PatientID
	TenantID  id.TenantID
	RefID     id.PatientRefID
	CreatedAt time.Time
}
