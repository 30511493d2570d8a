// Package worker consumes verification jobs: it scores each document, records the
// result, publishes IdentityDocumentVerified, and only then deletes the message.
// Any failure before the delete leaves the message for redelivery.
package worker

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

	"carepay/internal/events"
	"carepay/internal/identity/models"
	patientmodels "carepay/internal/patient/models"
	"carepay/internal/queue"
	"carepay/internal/tenant"
	"carepay/internal/verification"
	"carepay/internal/worker/metrics"
	id "carepay/pkg/domain"
	"carepay/pkg/platform/sentinel"
	"carepay/pkg/requestcontext"
)

// Outcome classifies how a message was handled.
type Outcome string

const (
	// OutcomeVerified means a new result was recorded and published.
	OutcomeVerified Outcome = "verified"
	// OutcomeRepublished means the document already carried a result (an earlier
	// delivery wrote it) and that result was published again.
	OutcomeRepublished Outcome = "republished"
	// OutcomeDiscarded means the message can never succeed (malformed body or no
	// such document) and is deleted.
	OutcomeDiscarded Outcome = "discarded"
	outcomeFailed    Outcome = "failed"
)

type DocumentStore interface {
	FindByID(ctx context.Context, docID id.DocumentID) (*models.IdentityDocument, error)
	ApplyVerification(ctx context.Context, docID id.DocumentID, v models.Verification, reverifyRequestedAt time.Time) (*models.IdentityDocument, error)
}

type PatientStore interface {
	FindByID(ctx context.Context, patientID id.PatientID) (*patientmodels.Patient, error)
}

type Evaluator interface {
	EvaluateDocument(doc *models.IdentityDocument, now time.Time) verification.Result
}

// Config controls polling. VisibilityTimeout must match the queue's so a message is
// never processed past the window in which this worker holds it.
type Config struct {
	BatchSize         int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	// ReceiveBackoff is the pause after a failed receive.
	ReceiveBackoff time.Duration
}

type Worker struct {
	queue     queue.Queue
	scoper    tenant.Scoper
	documents DocumentStore
	patients  PatientStore
	engine    Evaluator
	publisher events.Publisher
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithClock overrides the clock stamped on verification results.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func New(
	q queue.Queue,
	scoper tenant.Scoper,
	documents DocumentStore,
	patients PatientStore,
	engine Evaluator,
	publisher events.Publisher,
	cfg Config,
	opts ...Option,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.ReceiveBackoff <= 0 {
		cfg.ReceiveBackoff = time.Second
	}
	w := &Worker{
		queue:     q,
		scoper:    scoper,
		documents: documents,
		patients:  patients,
		engine:    engine,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    slog.Default(),
		tracer:    otel.Tracer("carepay/worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run long-polls until ctx is cancelled. Cancellation stops new polls; messages
// already received are processed to completion so they are not redelivered.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "verification worker started",
		"batch_size", w.cfg.BatchSize,
		"visibility_timeout", w.cfg.VisibilityTimeout.String(),
	)
	for {
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "verification worker stopped")
			return nil
		}
		msgs, err := w.queue.Receive(ctx, w.cfg.BatchSize, w.cfg.WaitTime)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.metrics.IncrementReceiveError()
			w.logger.ErrorContext(ctx, "queue receive failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ReceiveBackoff):
			}
			continue
		}
		for _, msg := range msgs {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one message and deletes it on success. The processing context is
// detached from ctx's cancellation and bounded by the visibility timeout.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) Outcome {
	start := time.Now()
	defer w.metrics.ObserveProcessing(start)
	w.metrics.IncrementReceived(msg.Receives)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.VisibilityTimeout)
	defer cancel()
	pctx = requestcontext.WithTime(pctx, w.now().UTC())

	outcome, err := w.Process(pctx, msg)
	if err != nil {
		w.metrics.IncrementProcessed(string(outcomeFailed))
		w.logger.ErrorContext(pctx, "verification job failed; leaving for redelivery",
			"message_id", msg.ID,
			"receives", msg.Receives,
			"error", err,
		)
		return outcomeFailed
	}
	w.metrics.IncrementProcessed(string(outcome))

	if err := w.queue.Delete(pctx, msg.Receipt); err != nil {
		if errors.Is(err, queue.ErrReceiptExpired) {
			w.logger.InfoContext(pctx, "message redelivered before delete",
				"message_id", msg.ID,
			)
			return outcome
		}
		w.metrics.IncrementDeleteFailure()
		w.logger.ErrorContext(pctx, "queue delete failed",
			"message_id", msg.ID,
			"error", err,
		)
	}
	return outcome
}

// Process verifies the job's document without touching the queue. A nil error means
// the message may be deleted.
func (w *Worker) Process(ctx context.Context, msg queue.Message) (Outcome, error) {
	job, err := queue.DecodeJob(msg.Body)
	if err != nil {
		w.logger.WarnContext(ctx, "discarding malformed verification job",
			"message_id", msg.ID,
			"error", err,
		)
		return OutcomeDiscarded, nil
	}

	ctx, span := w.tracer.Start(ctx, "worker.Process", trace.WithAttributes(
		attribute.String("tenant_id", job.TenantID.String()),
		attribute.String("document_id", job.DocumentID.String()),
		attribute.Bool("reverify", job.Reverify),
		attribute.Int("receives", msg.Receives),
	))
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		doc     *models.IdentityDocument
		ref     id.PatientRefID
		outcome Outcome
	)
	err = w.scoper.RunScoped(ctx, job.TenantID, func(ctx context.Context) error {
		current, err := w.documents.FindByID(ctx, job.DocumentID)
		if errors.Is(err, sentinel.ErrNotFound) {
			outcome = OutcomeDiscarded
			return nil
		}
		if err != nil {
			return fmt.Errorf("load document: %w", err)
		}

		doc, outcome, err = w.record(ctx, current, job.ReverifyRequestedAt(), now)
		if err != nil {
			return err
		}

		patient, err := w.patients.FindByID(ctx, doc.PatientID)
		if err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		ref = patient.RefID
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "processing failed")
		return outcomeFailed, err
	}
	if outcome == OutcomeDiscarded {
		w.logger.WarnContext(ctx, "discarding job for unknown document",
			"tenant_id", job.TenantID.String(),
			"document_id", job.DocumentID.String(),
		)
		return outcome, nil
	}

	if err := w.publisher.Publish(ctx, events.DocumentVerified(doc, ref, now)); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return outcomeFailed, fmt.Errorf("publish verified event: %w", err)
	}
	if outcome == OutcomeVerified {
		w.metrics.IncrementResult(doc.DocumentType.String(), doc.Status.String())
	}
	w.logger.InfoContext(ctx, "identity document verified",
		"tenant_id", job.TenantID.String(),
		"document_id", doc.ID.String(),
		"document_type", doc.DocumentType.String(),
		"status", doc.Status.String(),
		"outcome", string(outcome),
	)
	return outcome, nil
}

// record writes the engine's result unless the document already has one that a
// re-verification does not supersede. A redelivered re-verification finds the result
// it already recorded and republishes it. A concurrent writer winning the race is
// treated the same as finding the result already present.
func (w *Worker) record(ctx context.Context, doc *models.IdentityDocument, reverifyRequestedAt time.Time, now time.Time) (*models.IdentityDocument, Outcome, error) {
	if doc.Status.IsTerminal() && !doc.ResultPredates(reverifyRequestedAt) {
		return doc, OutcomeRepublished, nil
	}

	result := w.engine.EvaluateDocument(doc, now)
	updated, err := w.documents.ApplyVerification(ctx, doc.ID, result.Verification(now), reverifyRequestedAt)
	if errors.Is(err, sentinel.ErrInvalidState) {
		current, err := w.documents.FindByID(ctx, doc.ID)
		if err != nil {
			return nil, outcomeFailed, fmt.Errorf("reload document: %w", err)
		}
		return current, OutcomeRepublished, nil
	}
	if err != nil {
		return nil, outcomeFailed, fmt.Errorf("apply verification: %w", err)
	}
	return updated, OutcomeVerified, nil
}
