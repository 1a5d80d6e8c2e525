// edgewall/pkg/runtime/metrics.go

package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. They register against
// the supplied registerer; the dashboard serves them on /metrics.
type Metrics struct {
	Evaluations       *prometheus.CounterVec
	EvalDuration      prometheus.Histogram
	RateLimitExceeded *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	RuleSetLoads      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgewall",
			Name:      "evaluations_total",
			Help:      "Graph evaluations by terminal directive.",
		}, []string{"directive"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgewall",
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of a single graph evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
		}),
		RateLimitExceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgewall",
			Name:      "rate_limit_exceeded_total",
			Help:      "Rate-limit checks that returned exceeded, by counter.",
		}, []string{"counter"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgewall",
			Name:      "provider_errors_total",
			Help:      "Rate-limiter and list-provider failures, by provider.",
		}, []string{"provider"}),
		RuleSetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgewall",
			Name:      "ruleset_loads_total",
			Help:      "Rule-set load attempts, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Evaluations, m.EvalDuration, m.RateLimitExceeded, m.ProviderErrors, m.RuleSetLoads)
	}
	return m
}
