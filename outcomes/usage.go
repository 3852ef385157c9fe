package outcomes

import (
	"github.com/prometheus/client_golang/prometheus"
)

// UsageRecorder counts successful writes per operation. Incremented only
// after the store write succeeds.
type UsageRecorder interface {
	Incr(operation string)
}

// PrometheusUsage exports usage counters as Prometheus metrics.
type PrometheusUsage struct {
	writes *prometheus.CounterVec
}

var _ UsageRecorder = (*PrometheusUsage)(nil)

// NewPrometheusUsage creates and registers the usage counters on the given
// registerer.
func NewPrometheusUsage(reg prometheus.Registerer) *PrometheusUsage {
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "launchgate",
		Subsystem: "outcomes",
		Name:      "writes_total",
		Help:      "Successful outcome writes by operation.",
	}, []string{"operation"})
	reg.MustRegister(writes)
	return &PrometheusUsage{writes: writes}
}

func (p *PrometheusUsage) Incr(operation string) {
	p.writes.WithLabelValues(operation).Inc()
}

// NopUsage discards usage counts.
type NopUsage struct{}

var _ UsageRecorder = NopUsage{}

func (NopUsage) Incr(string) {}
