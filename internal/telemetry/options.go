package telemetry

import (
	"log/slog"
	"time"
)

// Option configures pipeline components.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
	bus     *Bus
	now     func() time.Time
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics exports queue and writer counters to m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBus publishes persisted spans on b.
func WithBus(b *Bus) Option {
	return func(o *options) { o.bus = b }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
