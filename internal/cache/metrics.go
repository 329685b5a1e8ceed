package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend labels used on the exported counters.
const (
	backendLocal = "local"
	backendRedis = "redis"
)

// Metrics exports cache hits and misses labelled by tier.
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metrics_cache_hits_total",
				Help: "Total number of metrics cache hits",
			},
			[]string{"backend"},
		),
		Misses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metrics_cache_misses_total",
				Help: "Total number of metrics cache misses",
			},
			[]string{"backend"},
		),
	}
}

func (m *Metrics) hit(backend string) {
	if m != nil {
		m.Hits.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) miss(backend string) {
	if m != nil {
		m.Misses.WithLabelValues(backend).Inc()
	}
}
