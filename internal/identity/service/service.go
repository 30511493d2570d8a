// Package service orchestrates identity document intake and tenant-scoped reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"carepay/internal/blob"
	"carepay/internal/events"
	"carepay/internal/identity/metrics"
	"carepay/internal/identity/models"
	patientmodels "carepay/internal/patient/models"
	"carepay/internal/queue"
	"carepay/internal/tenant"
	id "carepay/pkg/domain"
	dErrors "carepay/pkg/domain-errors"
	"carepay/pkg/platform/sentinel"
	"carepay/pkg/requestcontext"
)

const (
	MinPayloadBytes = 1
	MaxPayloadBytes = 10 << 20
)

type PatientStore interface {
	FindByRef(ctx context.Context, ref id.PatientRefID) (*patientmodels.Patient, error)
	FindByID(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *models.IdentityDocument) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error)
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]*models.IdentityDocument, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

type URLSigner interface {
	SignedURL(key string, now time.Time, ttl time.Duration) (string, time.Time)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
}

// Service coordinates the blob store, metadata store, verification queue, and event
// publisher for uploads, and serves tenant-scoped reads.
type Service struct {
	scoper    tenant.Scoper
	patients  PatientStore
	documents DocumentStore
	blobs     BlobStore
	signer    URLSigner
	queue     Enqueuer
	publisher events.Publisher
	urlTTL    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

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

// WithURLTTL sets the lifetime of signed download URLs.
func WithURLTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.urlTTL = ttl
	}
}

func New(
	scoper tenant.Scoper,
	patients PatientStore,
	documents DocumentStore,
	blobs BlobStore,
	signer URLSigner,
	q Enqueuer,
	publisher events.Publisher,
	opts ...Option,
) *Service {
	s := &Service{
		scoper:    scoper,
		patients:  patients,
		documents: documents,
		blobs:     blobs,
		signer:    signer,
		queue:     q,
		publisher: publisher,
		urlTTL:    5 * time.Minute,
		logger:    slog.Default(),
		tracer:    otel.Tracer("carepay/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadCommand is a validated upload request.
type UploadCommand struct {
	PatientRefID    id.PatientRefID
	DocumentType    models.DocumentType
	Payload         []byte
	ExtractedFields models.ExtractedFields
}

// UploadResult acknowledges a stored upload.
type UploadResult struct {
	DocumentID id.DocumentID
	Status     string
}

// DocumentView is a document with its public patient reference. The internal
// patient id is not part of any view.
type DocumentView struct {
	Document     *models.IdentityDocument
	PatientRefID id.PatientRefID
}

// DownloadLink is a short-lived signed URL for a document's bytes.
type DownloadLink struct {
	URL       string
	ExpiresAt time.Time
}

// Upload stores the payload, records the pending document, and hands it to the
// verification queue. The blob is written before the metadata row so a row never
// references a missing blob; an orphaned blob is harmless.
//
// Once the row is committed the upload succeeds. A failed enqueue leaves the document
// pending for the reconciliation sweep, and a failed upload event is logged only.
func (s *Service) Upload(ctx context.Context, tenantID id.TenantID, cmd UploadCommand) (*UploadResult, error) {
	start := time.Now()
	defer s.metrics.ObserveUpload(start)

	ctx, span := s.tracer.Start(ctx, "identity.Upload", trace.WithAttributes(
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("document_type", cmd.DocumentType.String()),
	))
	defer span.End()

	if err := validateUpload(cmd); err != nil {
		s.metrics.IncrementUpload(cmd.DocumentType.String(), "invalid")
		return nil, err
	}
	fields := cmd.ExtractedFields.Normalize()
	now := requestcontext.Now(ctx)
	docID := id.NewDocumentID()
	blobKey := blob.DocumentKey(tenantID, docID)

	var (
		doc     *models.IdentityDocument
		patient *patientmodels.Patient
	)
	err := s.scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		var err error
		patient, err = s.patients.FindByRef(ctx, cmd.PatientRefID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "patient not found")
			}
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to resolve patient")
		}

		if err := s.blobs.Put(ctx, blobKey, cmd.Payload); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to store document")
		}

		doc, err = models.NewIdentityDocument(docID, tenantID, patient.ID, cmd.DocumentType, blobKey,
			blob.DetectContentType(cmd.Payload), int64(len(cmd.Payload)), fields, now)
		if err != nil {
			return err
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to record document")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncrementUpload(cmd.DocumentType.String(), outcomeFor(err))
		span.SetStatus(codes.Error, "upload failed")
		if _, coded := dErrors.As(err); !coded {
			err = dErrors.Wrap(err, dErrors.CodeStorage, "failed to store document")
		}
		if dErrors.HasCode(err, dErrors.CodeStorage) {
			s.logger.ErrorContext(ctx, "identity upload failed",
				"tenant_id", tenantID.String(),
				"document_type", cmd.DocumentType.String(),
				"error", err,
			)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("document_id", docID.String()))

	if _, err := s.queue.Enqueue(ctx, queue.NewJob(doc, false, now)); err != nil {
		s.metrics.IncrementEnqueueFailure()
		s.logger.ErrorContext(ctx, "verification enqueue failed; document left pending for sweep",
			"tenant_id", tenantID.String(),
			"document_id", docID.String(),
			"error", err,
		)
	}

	if err := s.publisher.Publish(ctx, events.DocumentUploaded(doc, patient.RefID, now)); err != nil {
		s.metrics.IncrementPublishFailure(string(events.TypeIdentityDocumentUploaded))
		s.logger.WarnContext(ctx, "upload event publish failed",
			"tenant_id", tenantID.String(),
			"document_id", docID.String(),
			"error", err,
		)
	}

	s.metrics.IncrementUpload(cmd.DocumentType.String(), "stored")
	s.metrics.ObserveUploadBytes(len(cmd.Payload))
	s.logger.InfoContext(ctx, "identity document stored",
		"tenant_id", tenantID.String(),
		"document_id", docID.String(),
		"document_type", cmd.DocumentType.String(),
		"size_bytes", len(cmd.Payload),
	)
	return &UploadResult{DocumentID: docID, Status: events.StatusStored}, nil
}

func validateUpload(cmd UploadCommand) error {
	if cmd.PatientRefID == "" {
		return dErrors.New(dErrors.CodeValidation, "patient_ref_id is required")
	}
	if cmd.DocumentType == "" {
		return dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	if len(cmd.Payload) < MinPayloadBytes {
		return dErrors.New(dErrors.CodeValidation, "image_base64 is required")
	}
	if len(cmd.Payload) > MaxPayloadBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("document exceeds %d bytes", MaxPayloadBytes))
	}
	return cmd.ExtractedFields.Validate()
}

func outcomeFor(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return "patient_not_found"
	case dErrors.HasCode(err, dErrors.CodeValidation):
		return "invalid"
	default:
		return "error"
	}
}

// Get returns a document's metadata in the caller's tenant.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*DocumentView, error) {
	var view *DocumentView
	err := s.scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		doc, err := s.findDocument(ctx, docID)
		if err != nil {
			return err
		}
		patient, err := s.patients.FindByID(ctx, doc.PatientID)
		if err != nil {
			return translate(err, "patient not found", "failed to load patient")
		}
		view = &DocumentView{Document: doc, PatientRefID: patient.RefID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListForPatient returns the patient's documents, newest first.
func (s *Service) ListForPatient(ctx context.Context, tenantID id.TenantID, ref id.PatientRefID) ([]*DocumentView, error) {
	var views []*DocumentView
	err := s.scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		patient, err := s.patients.FindByRef(ctx, ref)
		if err != nil {
			return translate(err, "patient not found", "failed to resolve patient")
		}
		docs, err := s.documents.ListByPatient(ctx, patient.ID)
		if err != nil {
			return translate(err, "patient not found", "failed to list documents")
		}
		views = make([]*DocumentView, 0, len(docs))
		for _, doc := range docs {
			views = append(views, &DocumentView{Document: doc, PatientRefID: patient.RefID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// DownloadURL issues a short-lived signed URL for the document bytes.
func (s *Service) DownloadURL(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*DownloadLink, error) {
	var doc *models.IdentityDocument
	err := s.scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		var err error
		doc, err = s.findDocument(ctx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}
	link, expiresAt := s.signer.SignedURL(doc.BlobKey, requestcontext.Now(ctx), s.urlTTL)
	s.metrics.IncrementDownloadURL()
	s.logger.InfoContext(ctx, "download url issued",
		"tenant_id", tenantID.String(),
		"document_id", docID.String(),
		"subject", requestcontext.Subject(ctx),
	)
	return &DownloadLink{URL: link, ExpiresAt: expiresAt}, nil
}

// Reverify queues an explicit re-verification of a terminal document. The stored
// result stays in place until the worker records the new one.
func (s *Service) Reverify(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.IdentityDocument, error) {
	var doc *models.IdentityDocument
	err := s.scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		var err error
		doc, err = s.findDocument(ctx, docID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !doc.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeConflict, "document verification is still pending")
	}
	if _, err := s.queue.Enqueue(ctx, queue.NewJob(doc, true, requestcontext.Now(ctx))); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to queue re-verification")
	}
	s.metrics.IncrementReverify()
	s.logger.InfoContext(ctx, "re-verification queued",
		"tenant_id", tenantID.String(),
		"document_id", docID.String(),
		"previous_status", doc.Status.String(),
	)
	return doc, nil
}

func (s *Service) findDocument(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, translate(err, "document not found", "failed to load document")
	}
	return doc, nil
}

func translate(err error, notFound, storage string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrNoTenantScope):
		return dErrors.Wrap(err, dErrors.CodeInternal, "tenant scope missing")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, storage)
	}
}
