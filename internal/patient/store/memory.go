// Package store persists patients. Every operation is tenant-scoped through the
// context and fails closed without a scope.
package store

import (
	"context"
	"sync"

	"carepay/internal/patient/models"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

type refKey struct {
	tenant id.TenantID
	ref    id.PatientRefID
}

// InMemory keeps patients in process memory, keyed by tenant.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[id.PatientID]*models.Patient
	byRef map[refKey]id.PatientID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[id.PatientID]*models.Patient),
		byRef: make(map[refKey]id.PatientID),
	}
}

func (s *InMemory) Create(ctx context.Context, p *models.Patient) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if p.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := refKey{tenant: tenantID, ref: p.RefID}
	if _, ok := s.byRef[key]; ok {
		return sentinel.ErrConflict
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byRef[key] = p.ID
	return nil
}

func (s *InMemory) FindByRef(ctx context.Context, ref id.PatientRefID) (*models.Patient, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	patientID, ok := s.byRef[refKey{tenant: tenantID, ref: ref}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[patientID]
	return &cp, nil
}

func (s *InMemory) FindByID(ctx context.Context, patientID id.PatientID) (*models.Patient, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[patientID]
	if !ok || p.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
