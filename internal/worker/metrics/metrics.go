package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification worker.
type Metrics struct {
	Received           prometheus.Counter
	Redelivered        prometheus.Counter
	ReceiveErrors      prometheus.Counter
	Processed          *prometheus.CounterVec
	Results            *prometheus.CounterVec
	DeleteFailures     prometheus.Counter
	ProcessingDuration prometheus.Histogram
}

// New registers the worker metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Received: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_worker_messages_received_total",
			Help: "Verification messages received from the queue",
		}),
		Redelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_worker_messages_redelivered_total",
			Help: "Messages received more than once (visibility timeout expired)",
		}),
		ReceiveErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_worker_receive_errors_total",
			Help: "Failed queue receive calls",
		}),
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_worker_messages_processed_total",
			Help: "Processed messages by outcome",
		}, []string{"outcome"}),
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_worker_verification_results_total",
			Help: "Verification results recorded by document type and status",
		}, []string{"document_type", "status"}),
		DeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_worker_delete_failures_total",
			Help: "Processed messages whose delete failed (they will be redelivered)",
		}),
		ProcessingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepay_worker_processing_duration_seconds",
			Help:    "Time to process one message",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (m *Metrics) IncrementReceived(receives int) {
	if m == nil {
		return
	}
	m.Received.Inc()
	if receives > 1 {
		m.Redelivered.Inc()
	}
}

func (m *Metrics) IncrementReceiveError() {
	if m == nil {
		return
	}
	m.ReceiveErrors.Inc()
}

func (m *Metrics) IncrementProcessed(outcome string) {
	if m == nil {
		return
	}
	m.Processed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementResult(documentType, status string) {
	if m == nil {
		return
	}
	m.Results.WithLabelValues(documentType, status).Inc()
}

func (m *Metrics) IncrementDeleteFailure() {
	if m == nil {
		return
	}
	m.DeleteFailures.Inc()
}

func (m *Metrics) ObserveProcessing(start time.Time) {
	if m == nil {
		return
	}
	m.ProcessingDuration.Observe(time.Since(start).Seconds())
}
