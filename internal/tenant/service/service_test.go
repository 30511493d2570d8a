package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TenantStore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"carepay/internal/tenant/metrics"
	"carepay/internal/tenant/models"
	"carepay/internal/tenant/service/mocks"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/sentinel"
	"carepay/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockTenantStore
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockTenantStore(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, WithMetrics(s.metrics))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) activeTenant() *models.Tenant {
	t, err := models.NewTenant(id.TenantID(uuid.New()), "Clinic", s.now)
	s.Require().NoError(err)
	return t
}

func (s *ServiceSuite) TestCreateTenant() {
	s.Run("creates tenant with request time", func() {
		s.store.EXPECT().CreateIfNameAvailable(gomock.Any(), gomock.Any()).Return(nil)

		t, err := s.service.CreateTenant(s.ctx, "  Clinic North  ")
		s.Require().NoError(err)
		s.Equal("Clinic North", t.Name)
		s.Equal(s.now, t.CreatedAt)
		s.Equal(models.TenantStatusActive, t.Status)
	})

	s.Run("empty name is a validation error", func() {
		_, err := s.service.CreateTenant(s.ctx, "   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate name is a conflict", func() {
		s.store.EXPECT().CreateIfNameAvailable(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

		_, err := s.service.CreateTenant(s.ctx, "Clinic North")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestResolve() {
	s.Run("active tenant resolves", func() {
		tenant := s.activeTenant()
		s.store.EXPECT().FindByID(gomock.Any(), tenant.ID).Return(tenant, nil)

		got, err := s.service.Resolve(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(tenant.ID, got.ID)
	})

	s.Run("unknown tenant is not found", func() {
		s.store.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.Resolve(s.ctx, id.TenantID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ResolveRejected.WithLabelValues("not_found")))
	})

	s.Run("inactive tenant is forbidden", func() {
		tenant := s.activeTenant()
		tenant.Status = models.TenantStatusInactive
		s.store.EXPECT().FindByID(gomock.Any(), tenant.ID).Return(tenant, nil)

		_, err := s.service.Resolve(s.ctx, tenant.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("store failure is a storage error", func() {
		s.store.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := s.service.Resolve(s.ctx, id.TenantID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeStorage))
	})
}

func (s *ServiceSuite) TestDeactivate() {
	tenant := s.activeTenant()
	s.store.EXPECT().FindByID(gomock.Any(), tenant.ID).Return(tenant, nil)
	s.store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, t *models.Tenant) error {
		s.Equal(models.TenantStatusInactive, t.Status)
		return nil
	})

	got, err := s.service.Deactivate(s.ctx, tenant.ID)
	s.Require().NoError(err)
	s.False(got.IsActive())
}
