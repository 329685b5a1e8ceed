package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports span pipeline counters.
type Metrics struct {
	Enqueued prometheus.Counter
	Dropped  prometheus.Counter
	Writes   *prometheus.CounterVec
}

// NewMetrics creates the pipeline counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "gatewayobs_span_queue_total",
			Help: "Total number of span enqueue attempts",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gatewayobs_span_queue_dropped_total",
			Help: "Total number of spans dropped because the queue was full",
		}),
		Writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewayobs_span_writes_total",
			Help: "Total number of span persistence attempts",
		}, []string{"status"}),
	}
}

func (m *Metrics) enqueued() {
	if m != nil {
		m.Enqueued.Inc()
	}
}

func (m *Metrics) droppedSpan() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) write(status string) {
	if m != nil {
		m.Writes.WithLabelValues(status).Inc()
	}
}
