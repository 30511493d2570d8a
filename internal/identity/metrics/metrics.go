package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity ingest path.
type Metrics struct {
	Uploads            *prometheus.CounterVec
	UploadDuration     prometheus.Histogram
	UploadBytes        prometheus.Histogram
	EnqueueFailures    prometheus.Counter
	PublishFailures    *prometheus.CounterVec
	DownloadURLsIssued prometheus.Counter
	Reverifications    prometheus.Counter
}

// New registers the identity metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_identity_uploads_total",
			Help: "Identity document uploads by document type and outcome",
		}, []string{"document_type", "outcome"}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepay_identity_upload_duration_seconds",
			Help:    "Duration of identity uploads from validation to response",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepay_identity_upload_bytes",
			Help:    "Decoded payload size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		EnqueueFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_identity_enqueue_failures_total",
			Help: "Uploads stored but not enqueued for verification (recovered by the sweep)",
		}),
		PublishFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_identity_event_publish_failures_total",
			Help: "Domain events that failed to publish on the ingest path",
		}, []string{"event_type"}),
		DownloadURLsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_identity_download_urls_issued_total",
			Help: "Signed download URLs issued",
		}),
		Reverifications: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_identity_reverifications_total",
			Help: "Explicit re-verification requests accepted",
		}),
	}
}

func (m *Metrics) IncrementUpload(documentType, outcome string) {
	if m != nil {
		m.Uploads.WithLabelValues(documentType, outcome).Inc()
	}
}

// ObserveUpload records the duration of an upload.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveUpload(start time.Time) {
	if m != nil {
		m.UploadDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveUploadBytes(n int) {
	if m != nil {
		m.UploadBytes.Observe(float64(n))
	}
}

func (m *Metrics) IncrementEnqueueFailure() {
	if m != nil {
		m.EnqueueFailures.Inc()
	}
}

func (m *Metrics) IncrementPublishFailure(eventType string) {
	if m != nil {
		m.PublishFailures.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncrementDownloadURL() {
	if m != nil {
		m.DownloadURLsIssued.Inc()
	}
}

func (m *Metrics) IncrementReverify() {
	if m != nil {
		m.Reverifications.Inc()
	}
}
