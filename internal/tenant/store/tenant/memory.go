package tenant

import (
	"context"
	"sort"
	"strings"
	"sync"

	"carepay/internal/tenant/models"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

// InMemory is a process-local tenant registry for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
}

func NewInMemory() *InMemory {
	return &InMemory{tenants: make(map[id.TenantID]*models.Tenant)}
}

func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, t.Name) {
			return sentinel.ErrConflict
		}
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

// ListActive returns active tenants ordered by creation time.
func (s *InMemory) ListActive(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if t.IsActive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
