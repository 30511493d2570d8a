// Package reconcile re-enqueues documents stuck in pending, covering uploads whose
// verification job was lost (enqueue failure after commit, purged queue). Processing
// is idempotent, so re-enqueueing a document that is merely slow is harmless.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"carepay/internal/identity/models"
	"carepay/internal/queue"
	"carepay/internal/tenant"
	tenantmodels "carepay/internal/tenant/models"
	"carepay/pkg/requestcontext"
)

type TenantLister interface {
	ListActive(ctx context.Context) ([]*tenantmodels.Tenant, error)
}

type DocumentLister interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.IdentityDocument, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
}

// Report summarises one sweep.
type Report struct {
	Tenants  int
	Requeued int
	Failed   int
}

type Metrics struct {
	Runs     prometheus.Counter
	Requeued prometheus.Counter
	Failures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_reconcile_runs_total",
			Help: "Completed stale-pending sweeps",
		}),
		Requeued: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_reconcile_requeued_total",
			Help: "Stale pending documents re-enqueued for verification",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_reconcile_failures_total",
			Help: "Tenants or documents the sweep could not process",
		}),
	}
}

type Sweeper struct {
	tenants    TenantLister
	scoper     tenant.Scoper
	documents  DocumentLister
	queue      Enqueuer
	staleAfter time.Duration
	batchSize  int
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(
	tenants TenantLister,
	scoper tenant.Scoper,
	documents DocumentLister,
	q Enqueuer,
	staleAfter time.Duration,
	batchSize int,
	opts ...Option,
) *Sweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	s := &Sweeper{
		tenants:    tenants,
		scoper:     scoper,
		documents:  documents,
		queue:      q,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start sweeps every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "reconcile sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "reconcile sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce re-enqueues up to batchSize stale documents per active tenant. A failing
// tenant is logged and skipped; only a failure to list tenants aborts the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	var report Report
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return report, err
	}
	now := requestcontext.Now(ctx)
	cutoff := now.Add(-s.staleAfter)

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Tenants++

		var stale []*models.IdentityDocument
		err := s.scoper.RunScoped(ctx, t.ID, func(ctx context.Context) error {
			var err error
			stale, err = s.documents.ListStalePending(ctx, cutoff, s.batchSize)
			return err
		})
		if err != nil {
			report.Failed++
			s.incFailure()
			s.logger.ErrorContext(ctx, "listing stale documents failed",
				"tenant_id", t.ID.String(),
				"error", err,
			)
			continue
		}

		for _, doc := range stale {
			if _, err := s.queue.Enqueue(ctx, queue.NewJob(doc, false, now)); err != nil {
				report.Failed++
				s.incFailure()
				s.logger.ErrorContext(ctx, "re-enqueue failed",
					"tenant_id", t.ID.String(),
					"document_id", doc.ID.String(),
					"error", err,
				)
				continue
			}
			report.Requeued++
			if s.metrics != nil {
				s.metrics.Requeued.Inc()
			}
		}
		if len(stale) > 0 {
			s.logger.InfoContext(ctx, "stale pending documents re-enqueued",
				"tenant_id", t.ID.String(),
				"count", len(stale),
			)
		}
	}
	if s.metrics != nil {
		s.metrics.Runs.Inc()
	}
	return report, nil
}

func (s *Sweeper) incFailure() {
	if s.metrics != nil {
		s.metrics.Failures.Inc()
	}
}
