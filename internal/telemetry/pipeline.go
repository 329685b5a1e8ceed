package telemetry

import (
	"context"
	"database/sql"
	"sync"
)

// Pipeline wires the query capture path: an Instrumentor feeding a Queue
// drained by one Writer.
type Pipeline struct {
	cfg  Config
	opts []Option

	queue *Queue
	inst  *Instrumentor

	mu     sync.Mutex
	writer *Writer
}

// NewPipeline creates the queue and instrumentor. No spans are persisted
// until Enable attaches a sink.
func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	cfg = cfg.withDefaults()
	o := buildOptions(opts)
	q := NewQueue(cfg.QueueSize, o.metrics)
	return &Pipeline{
		cfg:   cfg,
		opts:  opts,
		queue: q,
		inst:  NewInstrumentor(cfg, q, opts...),
	}
}

// Queue returns the span queue.
func (p *Pipeline) Queue() *Queue { return p.queue }

// Instrumentor returns the driver hook target.
func (p *Pipeline) Instrumentor() *Instrumentor { return p.inst }

// Open opens an instrumented *sql.DB. See Open.
func (p *Pipeline) Open(driverName, dsn string) (*sql.DB, error) {
	return Open(driverName, dsn, p.inst)
}

// Enable starts the span writer for sink. Calling it while a writer is
// already running is a no-op and returns the running writer.
func (p *Pipeline) Enable(ctx context.Context, sink SpanSink) *Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer != nil && p.writer.Running() {
		return p.writer
	}
	if !p.cfg.Enabled {
		return nil
	}
	p.writer = NewWriter(p.cfg, p.queue, sink, p.opts...)
	p.writer.Start(ctx)
	return p.writer
}

// Flush waits for the running writer to drain accepted spans.
func (p *Pipeline) Flush(ctx context.Context) error {
	if w := p.currentWriter(); w != nil {
		return w.Flush(ctx)
	}
	return nil
}

// Shutdown stops the writer, if any.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if w := p.currentWriter(); w != nil {
		return w.Shutdown(ctx)
	}
	return nil
}

func (p *Pipeline) currentWriter() *Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer
}

// Running reports whether a span writer is active.
func (p *Pipeline) Running() bool {
	w := p.currentWriter()
	return w != nil && w.Running()
}
