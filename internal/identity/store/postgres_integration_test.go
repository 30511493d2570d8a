//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"carepay/internal/identity/models"
	"carepay/internal/identity/store"
	patientmodels "carepay/internal/patient/models"
	patientstore "carepay/internal/patient/store"
	"carepay/internal/tenant"
	tenantmodels "carepay/internal/tenant/models"
	tenantstore "carepay/internal/tenant/store/tenant"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
	"carepay/pkg/testutil/containers"
)

type PostgresDocumentStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	patients *patientstore.PostgresStore
	scoper   *tenant.PostgresScoper
	tenantA  id.TenantID
	tenantB  id.TenantID
	patientA id.PatientID
}

func TestPostgresDocumentStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDocumentStoreSuite))
}

func (s *PostgresDocumentStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.patients = patientstore.NewPostgres(s.postgres.DB)
	s.scoper = tenant.NewPostgresScoper(s.postgres.DB)
}

func (s *PostgresDocumentStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "identity_documents", "patients", "tenants"))

	tenants := tenantstore.NewPostgres(s.postgres.DB)
	now := time.Now().UTC()
	for _, name := range []string{"A", "B"} {
		t, err := tenantmodels.NewTenant(id.TenantID(uuid.New()), "Clinic "+name, now)
		s.Require().NoError(err)
		s.Require().NoError(tenants.CreateIfNameAvailable(ctx, t))
		if name == "A" {
			s.tenantA = t.ID
		} else {
			s.tenantB = t.ID
		}
	}

	s.patientA = id.PatientID(uuid.New())
	s.Require().NoError(s.scoper.RunScoped(ctx, s.tenantA, func(ctx context.Context) error {
		return s.patients.Create(ctx, &patientmodels.Patient{
			ID: s.patientA, TenantID: s.tenantA, RefID: "pat_a", CreatedAt: now,
		})
	}))
}

func (s *PostgresDocumentStoreSuite) createDocument() *models.IdentityDocument {
	doc, err := models.NewIdentityDocument(id.NewDocumentID(), s.tenantA, s.patientA,
		models.DocumentTypePassport, "tenants/a/identity/d", "image/png", 3,
		models.ExtractedFields{"passport_number": "P1"}, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	s.Require().NoError(s.scoper.RunScoped(context.Background(), s.tenantA, func(ctx context.Context) error {
		return s.store.Create(ctx, doc)
	}))
	return doc
}

func (s *PostgresDocumentStoreSuite) TestRoundTripAndIsolation() {
	doc := s.createDocument()

	s.Require().NoError(s.scoper.RunScoped(context.Background(), s.tenantA, func(ctx context.Context) error {
		found, err := s.store.FindByID(ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
		s.Equal("P1", found.ExtractedFields["passport_number"])
		s.Empty(found.Issues)
		s.Nil(found.Confidence)
		return nil
	}))

	err := s.scoper.RunScoped(context.Background(), s.tenantB, func(ctx context.Context) error {
		_, err := s.store.FindByID(ctx, doc.ID)
		return err
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresDocumentStoreSuite) TestApplyVerificationIsConditional() {
	doc := s.createDocument()
	now := time.Now().UTC().Truncate(time.Microsecond)
	result := models.Verification{
		Status: models.StatusNeedsReview, Confidence: 70,
		Issues: []string{"missing issuing_country", "missing expiration_date"}, VerifiedAt: now,
	}

	s.Require().NoError(s.scoper.RunScoped(context.Background(), s.tenantA, func(ctx context.Context) error {
		updated, err := s.store.ApplyVerification(ctx, doc.ID, result, time.Time{})
		s.Require().NoError(err)
		s.Equal(result.Issues, updated.Issues)
		s.Equal(70, *updated.Confidence)

		_, err = s.store.ApplyVerification(ctx, doc.ID, result, time.Time{})
		s.ErrorIs(err, sentinel.ErrInvalidState)

		stale := models.Verification{Status: models.StatusExpired, Confidence: 100, VerifiedAt: now.Add(6 * time.Minute)}
		_, err = s.store.ApplyVerification(ctx, doc.ID, stale, now.Add(-time.Second))
		s.ErrorIs(err, sentinel.ErrInvalidState, "a request older than the stored result does not overwrite it")

		fresh := models.Verification{Status: models.StatusVerified, Confidence: 100, Issues: []string{}, VerifiedAt: now.Add(2 * time.Minute)}
		updated, err = s.store.ApplyVerification(ctx, doc.ID, fresh, now.Add(time.Minute))
		s.Require().NoError(err)
		s.Equal(models.StatusVerified, updated.Status)
		s.True(fresh.VerifiedAt.Equal(*updated.VerifiedAt))

		_, err = s.store.ApplyVerification(ctx, id.NewDocumentID(), result, time.Time{})
		s.ErrorIs(err, sentinel.ErrNotFound)
		return nil
	}))
}
