package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"carepay/internal/events"
	"carepay/internal/identity/models"
	documentstore "carepay/internal/identity/store"
	patientmodels "carepay/internal/patient/models"
	patientstore "carepay/internal/patient/store"
	"carepay/internal/platform/logger"
	"carepay/internal/queue"
	"carepay/internal/tenant"
	"carepay/internal/verification"
	"carepay/internal/worker/metrics"
	id "carepay/pkg/domain"
	"carepay/pkg/requestcontext"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type WorkerSuite struct {
	suite.Suite
	clock     *clock
	tenantID  id.TenantID
	patient   *patientmodels.Patient
	documents *documentstore.InMemory
	patients  *patientstore.InMemory
	queue     *queue.MemoryQueue
	events    *events.Recorder
	metrics   *metrics.Metrics
	worker    *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.clock = &clock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	s.tenantID = id.TenantID(uuid.New())
	s.documents = documentstore.NewInMemory()
	s.patients = patientstore.NewInMemory()
	s.queue = queue.NewMemoryQueue(5*time.Minute, queue.WithClock(s.clock.Now))
	s.events = events.NewRecorder()
	s.metrics = metrics.New(prometheus.NewRegistry())

	s.patient = &patientmodels.Patient{
		ID: id.PatientID(uuid.New()), TenantID: s.tenantID, RefID: "pat_001", CreatedAt: s.clock.Now(),
	}
	s.Require().NoError(s.patients.Create(s.scoped(), s.patient))

	s.worker = s.newWorker(s.documents, s.events)
}

func (s *WorkerSuite) newWorker(docs DocumentStore, pub events.Publisher) *Worker {
	return New(s.queue, tenant.NewMemoryScoper(), docs, s.patients, verification.NewEngine(), pub,
		Config{BatchSize: 10, WaitTime: 10 * time.Millisecond, VisibilityTimeout: 5 * time.Minute},
		WithLogger(logger.Discard()),
		WithMetrics(s.metrics),
		WithClock(s.clock.Now),
	)
}

func (s *WorkerSuite) scoped() context.Context {
	return tenant.WithScope(context.Background(), s.tenantID)
}

func (s *WorkerSuite) store(docType models.DocumentType, fields models.ExtractedFields) *models.IdentityDocument {
	docID := id.NewDocumentID()
	doc, err := models.NewIdentityDocument(docID, s.tenantID, s.patient.ID, docType,
		"tenants/"+s.tenantID.String()+"/identity/"+docID.String(), "image/png", 10, fields, s.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.documents.Create(s.scoped(), doc))
	return doc
}

func (s *WorkerSuite) enqueue(doc *models.IdentityDocument, reverify bool) {
	_, err := s.queue.Enqueue(context.Background(), queue.NewJob(doc, reverify, s.clock.Now()))
	s.Require().NoError(err)
}

func (s *WorkerSuite) receiveOne() queue.Message {
	msgs, err := s.queue.Receive(context.Background(), 1, 10*time.Millisecond)
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	return msgs[0]
}

func (s *WorkerSuite) load(docID id.DocumentID) *models.IdentityDocument {
	doc, err := s.documents.FindByID(s.scoped(), docID)
	s.Require().NoError(err)
	return doc
}

func (s *WorkerSuite) assertQueueEmpty() {
	pending, inflight, err := s.queue.Depth(context.Background())
	s.Require().NoError(err)
	s.Zero(pending)
	s.Zero(inflight)
}

func (s *WorkerSuite) TestVerifiesAndDeletes() {
	doc := s.store(models.DocumentTypeDriversLicense, models.ExtractedFields{
		"document_number": "DL1", "expiration_date": "2099-01-01", "issuing_state": "CA",
	})
	s.enqueue(doc, false)

	outcome := s.worker.Handle(context.Background(), s.receiveOne())
	s.Equal(OutcomeVerified, outcome)

	stored := s.load(doc.ID)
	s.Equal(models.StatusVerified, stored.Status)
	s.Require().NotNil(stored.Confidence)
	s.Equal(100, *stored.Confidence)
	s.Equal(s.clock.Now(), *stored.VerifiedAt)

	published := s.events.OfType(events.TypeIdentityDocumentVerified)
	s.Require().Len(published, 1)
	s.Equal("pat_001", published[0].PatientRefID)
	s.Equal("verified", published[0].VerificationStatus)
	s.Equal(doc.ID.String(), published[0].DocumentID)
	s.assertQueueEmpty()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Results.WithLabelValues("drivers_license", "verified")))
}

func (s *WorkerSuite) TestScenarios() {
	cases := []struct {
		name       string
		docType    models.DocumentType
		fields     models.ExtractedFields
		status     models.VerificationStatus
		confidence int
	}{
		{"license missing issuing state", models.DocumentTypeDriversLicense,
			models.ExtractedFields{"document_number": "DL1", "expiration_date": "2099-01-01"}, models.StatusVerified, 90},
		{"passport missing number and country", models.DocumentTypePassport,
			models.ExtractedFields{"expiration_date": "2099-01-01"}, models.StatusNeedsReview, 70},
		{"expired document", models.DocumentTypePassport,
			models.ExtractedFields{"passport_number": "P1", "issuing_country": "US", "expiration_date": "2000-01-01"}, models.StatusExpired, 100},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			doc := s.store(tc.docType, tc.fields)
			s.enqueue(doc, false)
			s.worker.Handle(context.Background(), s.receiveOne())

			stored := s.load(doc.ID)
			s.Equal(tc.status, stored.Status)
			s.Equal(tc.confidence, *stored.Confidence)
		})
	}
}

func (s *WorkerSuite) TestCrashBeforeDeleteIsHarmless() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{"passport_number": "P1"})
	s.enqueue(doc, false)

	// First delivery writes the row and publishes, then the process dies before
	// deleting the message.
	first := s.receiveOne()
	outcome, err := s.worker.Process(context.Background(), first)
	s.Require().NoError(err)
	s.Equal(OutcomeVerified, outcome)
	afterFirst := s.load(doc.ID)

	s.clock.Advance(6 * time.Minute)
	second := s.receiveOne()
	s.Equal(2, second.Receives)
	s.Equal(first.ID, second.ID)

	s.Equal(OutcomeRepublished, s.worker.Handle(context.Background(), second))
	s.Equal(afterFirst, s.load(doc.ID), "redelivery must not change the stored row")
	s.Len(s.events.OfType(events.TypeIdentityDocumentVerified), 2)
	s.assertQueueEmpty()
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Redelivered))
}

func (s *WorkerSuite) TestStaleReceiptAfterSlowProcessing() {
	doc := s.store(models.DocumentTypeEBTCardBack, models.ExtractedFields{"card_number": "123"})
	s.enqueue(doc, false)

	slow := s.receiveOne()
	s.clock.Advance(6 * time.Minute)
	fresh := s.receiveOne()

	s.Equal(OutcomeVerified, s.worker.Handle(context.Background(), slow))
	s.Equal(OutcomeRepublished, s.worker.Handle(context.Background(), fresh))
	s.assertQueueEmpty()
}

func (s *WorkerSuite) TestTerminalDocumentIsNotRewritten() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{})
	_, err := s.documents.ApplyVerification(s.scoped(), doc.ID, models.Verification{
		Status: models.StatusVerified, Confidence: 95, VerifiedAt: s.clock.Now(),
	}, time.Time{})
	s.Require().NoError(err)
	before := s.load(doc.ID)

	s.clock.Advance(time.Hour)
	s.enqueue(doc, false)
	s.Equal(OutcomeRepublished, s.worker.Handle(context.Background(), s.receiveOne()))

	s.Equal(before, s.load(doc.ID))
	published := s.events.OfType(events.TypeIdentityDocumentVerified)
	s.Require().Len(published, 1)
	s.Equal("verified", published[0].VerificationStatus)
}

func (s *WorkerSuite) TestReverifyOverwritesTerminalResult() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{"expiration_date": "2026-03-20"})
	s.enqueue(doc, false)
	s.worker.Handle(context.Background(), s.receiveOne())
	s.Equal(models.StatusNeedsReview, s.load(doc.ID).Status)

	// The passport lapses before the explicit re-verification.
	s.clock.Advance(30 * 24 * time.Hour)
	s.enqueue(doc, true)
	s.Equal(OutcomeVerified, s.worker.Handle(context.Background(), s.receiveOne()))

	stored := s.load(doc.ID)
	s.Equal(models.StatusExpired, stored.Status)
	s.Equal(s.clock.Now(), *stored.VerifiedAt)
}

func (s *WorkerSuite) TestRedeliveredReverifyKeepsFirstResult() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{
		"passport_number": "P1", "expiration_date": "2026-03-20", "issuing_country": "US",
	})
	s.enqueue(doc, false)
	s.Equal(OutcomeVerified, s.worker.Handle(context.Background(), s.receiveOne()))

	s.clock.Advance(9 * 24 * time.Hour)
	s.enqueue(doc, true)
	s.clock.Advance(time.Minute)

	// Processed but never deleted, as if the worker died before acknowledging.
	outcome, err := s.worker.Process(requestcontext.WithTime(context.Background(), s.clock.Now()), s.receiveOne())
	s.Require().NoError(err)
	s.Equal(OutcomeVerified, outcome)
	first := s.load(doc.ID)
	s.Equal(models.StatusVerified, first.Status)

	// The passport lapses before the redelivery arrives.
	s.clock.Advance(2 * 24 * time.Hour)
	s.Equal(OutcomeRepublished, s.worker.Handle(context.Background(), s.receiveOne()))

	s.Equal(first, s.load(doc.ID))
	published := s.events.OfType(events.TypeIdentityDocumentVerified)
	s.Require().Len(published, 3)
	s.Equal("verified", published[2].VerificationStatus)
	s.assertQueueEmpty()
}

func (s *WorkerSuite) TestDiscardsUnprocessableMessages() {
	s.Run("malformed body", func() {
		_, err := s.queue.Enqueue(context.Background(), queue.Job{DocumentID: "nope"})
		s.Require().NoError(err)
		s.Equal(OutcomeDiscarded, s.worker.Handle(context.Background(), s.receiveOne()))
	})

	s.Run("unknown document", func() {
		ghost := &models.IdentityDocument{
			ID: id.NewDocumentID(), TenantID: s.tenantID, PatientID: s.patient.ID,
			DocumentType: models.DocumentTypePassport,
		}
		s.enqueue(ghost, false)
		s.Equal(OutcomeDiscarded, s.worker.Handle(context.Background(), s.receiveOne()))
	})

	s.Run("document of another tenant", func() {
		doc := s.store(models.DocumentTypePassport, nil)
		job := queue.NewJob(doc, false, s.clock.Now())
		job.TenantID = uuid.NewString()
		_, err := s.queue.Enqueue(context.Background(), job)
		s.Require().NoError(err)
		s.Equal(OutcomeDiscarded, s.worker.Handle(context.Background(), s.receiveOne()))
		s.Equal(models.StatusPending, s.load(doc.ID).Status)
	})

	s.assertQueueEmpty()
	s.Empty(s.events.Events())
	s.Equal(3.0, testutil.ToFloat64(s.metrics.Processed.WithLabelValues(string(OutcomeDiscarded))))
}

func (s *WorkerSuite) TestPublishFailureLeavesMessage() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{"passport_number": "P1"})
	s.enqueue(doc, false)
	s.events.FailWith(errors.New("broker unavailable"))

	s.Equal(outcomeFailed, s.worker.Handle(context.Background(), s.receiveOne()))
	pending, inflight, err := s.queue.Depth(context.Background())
	s.Require().NoError(err)
	s.Zero(pending)
	s.EqualValues(1, inflight)
	s.True(s.load(doc.ID).Status.IsTerminal())

	s.events.FailWith(nil)
	s.clock.Advance(6 * time.Minute)
	s.Equal(OutcomeRepublished, s.worker.Handle(context.Background(), s.receiveOne()))
	s.Len(s.events.OfType(events.TypeIdentityDocumentVerified), 1)
	s.assertQueueEmpty()
}

type failingStore struct {
	DocumentStore
	err error
}

func (f failingStore) ApplyVerification(context.Context, id.DocumentID, models.Verification, time.Time) (*models.IdentityDocument, error) {
	return nil, f.err
}

func (s *WorkerSuite) TestStoreFailureLeavesMessage() {
	doc := s.store(models.DocumentTypePassport, models.ExtractedFields{})
	s.enqueue(doc, false)
	w := s.newWorker(failingStore{DocumentStore: s.documents, err: errors.New("connection reset")}, s.events)

	s.Equal(outcomeFailed, w.Handle(context.Background(), s.receiveOne()))
	s.Equal(models.StatusPending, s.load(doc.ID).Status)
	s.Empty(s.events.Events())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Processed.WithLabelValues(string(outcomeFailed))))
}

func (s *WorkerSuite) TestRunStopsOnCancel() {
	doc := s.store(models.DocumentTypeDriversLicense, models.ExtractedFields{"document_number": "DL1"})
	s.enqueue(doc, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	s.Eventually(func() bool {
		current, err := s.documents.FindByID(s.scoped(), doc.ID)
		return err == nil && current.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("worker did not stop after cancellation")
	}
	s.assertQueueEmpty()
}
