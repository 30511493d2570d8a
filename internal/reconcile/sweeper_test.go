package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"carepay/internal/identity/models"
	documentstore "carepay/internal/identity/store"
	"carepay/internal/platform/logger"
	"carepay/internal/queue"
	"carepay/internal/tenant"
	tenantmodels "carepay/internal/tenant/models"
	id "carepay/pkg/domain"
	"carepay/pkg/requestcontext"
)

type staticTenants struct {
	tenants []*tenantmodels.Tenant
	err     error
}

func (s staticTenants) ListActive(context.Context) ([]*tenantmodels.Tenant, error) {
	return s.tenants, s.err
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, queue.Job) (string, error) {
	return "", errors.New("queue unavailable")
}

type SweeperSuite struct {
	suite.Suite
	now       time.Time
	ctx       context.Context
	tenantA   *tenantmodels.Tenant
	tenantB   *tenantmodels.Tenant
	documents *documentstore.InMemory
	queue     *queue.MemoryQueue
	metrics   *Metrics
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	var err error
	s.tenantA, err = tenantmodels.NewTenant(id.TenantID(uuid.New()), "Clinic A", s.now)
	s.Require().NoError(err)
	s.tenantB, err = tenantmodels.NewTenant(id.TenantID(uuid.New()), "Clinic B", s.now)
	s.Require().NoError(err)
	s.documents = documentstore.NewInMemory()
	s.queue = queue.NewMemoryQueue(time.Minute)
	s.metrics = NewMetrics(prometheus.NewRegistry())
}

func (s *SweeperSuite) store(t *tenantmodels.Tenant, age time.Duration) *models.IdentityDocument {
	docID := id.NewDocumentID()
	doc, err := models.NewIdentityDocument(docID, t.ID, id.PatientID(uuid.New()), models.DocumentTypePassport,
		"tenants/x/identity/"+docID.String(), "image/png", 1, nil, s.now.Add(-age))
	s.Require().NoError(err)
	s.Require().NoError(s.documents.Create(tenant.WithScope(context.Background(), t.ID), doc))
	return doc
}

func (s *SweeperSuite) sweeper(tenants TenantLister, q Enqueuer) *Sweeper {
	return NewSweeper(tenants, tenant.NewMemoryScoper(), s.documents, q, 15*time.Minute, 10,
		WithLogger(logger.Discard()), WithMetrics(s.metrics))
}

func (s *SweeperSuite) TestRequeuesOnlyStalePending() {
	staleA := s.store(s.tenantA, time.Hour)
	staleB := s.store(s.tenantB, 20*time.Minute)
	s.store(s.tenantA, time.Minute)
	done := s.store(s.tenantA, 2*time.Hour)
	_, err := s.documents.ApplyVerification(tenant.WithScope(context.Background(), s.tenantA.ID), done.ID,
		models.Verification{Status: models.StatusVerified, Confidence: 100, VerifiedAt: s.now}, time.Time{})
	s.Require().NoError(err)

	report, err := s.sweeper(staticTenants{tenants: []*tenantmodels.Tenant{s.tenantA, s.tenantB}}, s.queue).SweepOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(Report{Tenants: 2, Requeued: 2}, report)

	var queued []string
	for _, j := range s.queue.Jobs() {
		queued = append(queued, j.DocumentID)
		s.False(j.Reverify)
	}
	s.ElementsMatch([]string{staleA.ID.String(), staleB.ID.String()}, queued)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Requeued))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Runs))
}

func (s *SweeperSuite) TestEnqueueFailuresAreCounted() {
	s.store(s.tenantA, time.Hour)

	report, err := s.sweeper(staticTenants{tenants: []*tenantmodels.Tenant{s.tenantA}}, failingQueue{}).SweepOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(Report{Tenants: 1, Failed: 1}, report)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures))
}

func (s *SweeperSuite) TestTenantListingFailureAborts() {
	_, err := s.sweeper(staticTenants{err: errors.New("db down")}, s.queue).SweepOnce(s.ctx)
	s.Error(err)
}
