package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tenant module.
// Tracks tenant creation and the resolve path every request passes through.
type Metrics struct {
	TenantCreated   prometheus.Counter
	ResolveRejected *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
}

// New registers the tenant metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		TenantCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "carepay_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		ResolveRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carepay_tenant_resolve_rejected_total",
			Help: "Tenant resolutions refused, by reason",
		}, []string{"reason"}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carepay_tenant_resolve_duration_seconds",
			Help:    "Duration of tenant resolution (request critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementTenantCreated records a successful tenant creation.
func (m *Metrics) IncrementTenantCreated() {
	if m == nil {
		return
	}
	m.TenantCreated.Inc()
}

// IncrementResolveRejected records a refused resolution ("not_found", "inactive").
func (m *Metrics) IncrementResolveRejected(reason string) {
	if m == nil {
		return
	}
	m.ResolveRejected.WithLabelValues(reason).Inc()
}

// ObserveResolve records the duration of a Resolve operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
