package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"carepay/internal/identity/models"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
)

type InMemoryDocumentStoreSuite struct {
	suite.Suite
	store   *InMemory
	tenantA id.TenantID
	tenantB id.TenantID
	patient id.PatientID
	now     time.Time
}

func TestInMemoryDocumentStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryDocumentStoreSuite))
}

func (s *InMemoryDocumentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.tenantA = id.TenantID(uuid.New())
	s.tenantB = id.TenantID(uuid.New())
	s.patient = id.PatientID(uuid.New())
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
}

func (s *InMemoryDocumentStoreSuite) scoped(tenantID id.TenantID) context.Context {
	return tenant.WithScope(context.Background(), tenantID)
}

func (s *InMemoryDocumentStoreSuite) seed(tenantID id.TenantID, createdAt time.Time) *models.IdentityDocument {
	doc, err := models.NewIdentityDocument(id.NewDocumentID(), tenantID, s.patient,
		models.DocumentTypeDriversLicense, "tenants/x/identity/y", "image/png", 10,
		models.ExtractedFields{"document_number": "DL1"}, createdAt)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.scoped(tenantID), doc))
	return doc
}

func (s *InMemoryDocumentStoreSuite) TestTenantIsolation() {
	doc := s.seed(s.tenantA, s.now)

	s.Run("owner tenant reads the document", func() {
		found, err := s.store.FindByID(s.scoped(s.tenantA), doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("other tenant gets not found with the correct id", func() {
		_, err := s.store.FindByID(s.scoped(s.tenantB), doc.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		docs, err := s.store.ListByPatient(s.scoped(s.tenantB), s.patient)
		s.Require().NoError(err)
		s.Empty(docs)

		_, err = s.store.ApplyVerification(s.scoped(s.tenantB), doc.ID, models.Verification{
			Status: models.StatusVerified, Confidence: 100, VerifiedAt: s.now,
		}, time.Time{})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unscoped access fails closed", func() {
		_, err := s.store.FindByID(context.Background(), doc.ID)
		s.ErrorIs(err, sentinel.ErrNoTenantScope)
		_, err = s.store.ListByPatient(context.Background(), s.patient)
		s.ErrorIs(err, sentinel.ErrNoTenantScope)
	})
}

func (s *InMemoryDocumentStoreSuite) TestListByPatientNewestFirst() {
	older := s.seed(s.tenantA, s.now.Add(-time.Hour))
	newer := s.seed(s.tenantA, s.now)

	docs, err := s.store.ListByPatient(s.scoped(s.tenantA), s.patient)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal(newer.ID, docs[0].ID)
	s.Equal(older.ID, docs[1].ID)
}

func (s *InMemoryDocumentStoreSuite) TestApplyVerification() {
	result := models.Verification{Status: models.StatusVerified, Confidence: 90, Issues: []string{"missing issuing_state"}, VerifiedAt: s.now}

	s.Run("pending document takes the result", func() {
		doc := s.seed(s.tenantA, s.now)
		updated, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, result, time.Time{})
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, updated.Status)
		s.Equal(90, *updated.Confidence)
	})

	s.Run("terminal document is left unchanged without reverify", func() {
		doc := s.seed(s.tenantA, s.now)
		_, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, result, time.Time{})
		s.Require().NoError(err)

		_, err = s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, models.Verification{
			Status: models.StatusRejected, Confidence: 10, VerifiedAt: s.now,
		}, time.Time{})
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.scoped(s.tenantA), doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, found.Status)
	})

	s.Run("reverify overwrites a terminal result", func() {
		doc := s.seed(s.tenantA, s.now)
		_, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, result, time.Time{})
		s.Require().NoError(err)

		updated, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, models.Verification{
			Status: models.StatusNeedsReview, Confidence: 70, VerifiedAt: s.now.Add(time.Minute),
		}, s.now.Add(30*time.Second))
		s.Require().NoError(err)
		s.Equal(models.StatusNeedsReview, updated.Status)
	})

	s.Run("reverify requested before the stored result is refused", func() {
		doc := s.seed(s.tenantA, s.now)
		_, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, result, time.Time{})
		s.Require().NoError(err)

		_, err = s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, models.Verification{
			Status: models.StatusExpired, Confidence: 100, VerifiedAt: s.now.Add(6 * time.Minute),
		}, s.now.Add(-time.Second))
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.scoped(s.tenantA), doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, found.Status)
		s.Equal(s.now, *found.VerifiedAt)
	})

	s.Run("pending is never written", func() {
		doc := s.seed(s.tenantA, s.now)
		_, err := s.store.ApplyVerification(s.scoped(s.tenantA), doc.ID, models.Verification{Status: models.StatusPending}, s.now.Add(time.Hour))
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *InMemoryDocumentStoreSuite) TestListStalePending() {
	stale := s.seed(s.tenantA, s.now.Add(-time.Hour))
	s.seed(s.tenantA, s.now)
	done := s.seed(s.tenantA, s.now.Add(-2*time.Hour))
	_, err := s.store.ApplyVerification(s.scoped(s.tenantA), done.ID, models.Verification{
		Status: models.StatusVerified, Confidence: 100, VerifiedAt: s.now,
	}, time.Time{})
	s.Require().NoError(err)

	docs, err := s.store.ListStalePending(s.scoped(s.tenantA), s.now.Add(-15*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal(stale.ID, docs[0].ID)
}
