package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"carepay/internal/identity/models"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

// InMemory keeps document metadata in process memory.
type InMemory struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.IdentityDocument
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.DocumentID]*models.IdentityDocument)}
}

func (s *InMemory) Create(ctx context.Context, doc *models.IdentityDocument) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	if doc.TenantID != tenantID {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	s.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok || doc.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *InMemory) ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.IdentityDocument{}
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && doc.PatientID == patientID {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ApplyVerification overwrites the verification fields. A terminal document is only
// rewritten by a re-verification requested after its result was recorded; otherwise
// sentinel.ErrInvalidState is returned and the stored row is unchanged.
func (s *InMemory) ApplyVerification(ctx context.Context, docID id.DocumentID, v models.Verification, reverifyRequestedAt time.Time) (*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok || doc.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	next := cloneDocument(doc)
	if err := next.ApplyVerification(v, reverifyRequestedAt); err != nil {
		return nil, sentinel.ErrInvalidState
	}
	s.docs[docID] = next
	return cloneDocument(next), nil
}

// ListStalePending returns pending documents created before olderThan, oldest first.
func (s *InMemory) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.IdentityDocument, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.IdentityDocument{}
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && doc.Status == models.StatusPending && doc.CreatedAt.Before(olderThan) {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
