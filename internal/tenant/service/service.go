package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"carepay/internal/tenant/metrics"
	"carepay/internal/tenant/models"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/sentinel"
	"carepay/pkg/requestcontext"
)

type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	ListActive(ctx context.Context) ([]*models.Tenant, error)
}

// Service owns the tenant registry and resolves request tenants.
type Service struct {
	tenants TenantStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(tenants TenantStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateTenant(ctx context.Context, name string) (*models.Tenant, error) {
	t, err := models.NewTenant(id.TenantID(uuid.New()), name, requestcontext.Now(ctx))
	if err != nil {
		// Convert invariant violations to validation errors for API response
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.tenants.CreateIfNameAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to create tenant")
	}
	s.logger.InfoContext(ctx, "tenant created", "tenant_id", t.ID.String())
	s.metrics.IncrementTenantCreated()
	return t, nil
}

// GetTenant fetches tenant metadata regardless of status.
func (s *Service) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "tenant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load tenant")
	}
	return t, nil
}

// Resolve is the single choke point that turns a caller-supplied tenant id into an
// active tenant. Unknown tenants are not found and inactive tenants are forbidden.
func (s *Service) Resolve(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	defer s.metrics.ObserveResolve(time.Now())

	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncrementResolveRejected("not_found")
		}
		return nil, err
	}
	if !t.IsActive() {
		s.metrics.IncrementResolveRejected("inactive")
		return nil, dErrors.New(dErrors.CodeForbidden, "tenant is inactive")
	}
	return t, nil
}

// Deactivate marks a tenant inactive. Its data is retained.
func (s *Service) Deactivate(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	t, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return t, nil
	}
	t.Status = models.TenantStatusInactive
	t.UpdatedAt = requestcontext.Now(ctx)
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update tenant")
	}
	s.logger.InfoContext(ctx, "tenant deactivated", "tenant_id", t.ID.String())
	return t, nil
}

// ListActive returns every active tenant, oldest first.
func (s *Service) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list tenants")
	}
	return tenants, nil
}
