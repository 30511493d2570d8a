package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, queues and blob backends return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in the caller's tenant
//   - ErrConflict: write-once resource already exists
//   - ErrInvalidState: entity in wrong state for the requested transition
//   - ErrUnavailable: backing service temporarily unavailable
//   - ErrNoTenantScope: data access attempted without an established tenant scope
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
	ErrNoTenantScope = errors.New("no tenant scope established")
)
