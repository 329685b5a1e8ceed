package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Writer is the single consumer of a Queue. It persists each span to a
// SpanSink on a background goroutine.
type Writer struct {
	queue   *Queue
	sink    SpanSink
	timeout time.Duration
	bus     *Bus
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a writer draining q into sink. It does not start until
// Start is called.
func NewWriter(cfg Config, q *Queue, sink SpanSink, opts ...Option) *Writer {
	o := buildOptions(opts)
	return &Writer{
		queue:   q,
		sink:    sink,
		timeout: cfg.withDefaults().DequeueTimeout,
		bus:     o.bus,
		metrics: o.metrics,
		logger:  o.logger,
		now:     o.now,
	}
}

// Start launches the worker goroutine. It reports false when the worker is
// already running.
func (w *Writer) Start(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.runningLocked() {
		return false
	}
	if w.cancel != nil {
		w.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	go func() {
		defer close(done)
		w.run(ctx)
	}()
	w.logger.Info("span writer started")
	return true
}

// Running reports whether the worker goroutine is active.
func (w *Writer) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runningLocked()
}

// runningLocked also covers a worker that exited because its parent
// context was cancelled.
func (w *Writer) runningLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Shutdown stops the worker and waits for it to exit. A span being
// persisted when Shutdown is called is allowed to finish.
func (w *Writer) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("span writer shutdown: %w", ctx.Err())
	}

	w.mu.Lock()
	if w.done == done {
		w.cancel, w.done = nil, nil
	}
	w.mu.Unlock()
	w.logger.Info("span writer stopped")
	return nil
}

// Flush waits until every accepted span has been processed.
func (w *Writer) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for w.queue.Stats().Pending > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush spans: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (w *Writer) run(ctx context.Context) {
	for ctx.Err() == nil {
		span, ok := w.queue.Dequeue(ctx, w.timeout)
		if !ok {
			continue
		}
		w.handle(ctx, span)
	}
}

func (w *Writer) handle(ctx context.Context, span SpanRecord) {
	defer w.queue.Done()

	spanID, err := w.persist(ctx, span)
	if err != nil {
		w.metrics.write(StatusError)
		w.logger.Error("persist span",
			"trace_id", span.TraceID,
			"name", span.Name,
			"error", err,
		)
		return
	}
	w.metrics.write(StatusOK)
	w.bus.Publish(&SpanEvent{SpanID: spanID, Span: span, PersistedAt: w.now().UTC()})
}

// persist writes one span in its own sink session. It runs with
// instrumentation suppressed and is not interrupted by Shutdown.
func (w *Writer) persist(ctx context.Context, span SpanRecord) (spanID string, err error) {
	ctx = Suppress(context.WithoutCancel(ctx))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	sess, err := w.sink.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	defer sess.Close() //nolint:errcheck

	spanID, err = sess.StartSpan(ctx, SpanStart{
		TraceID:      span.TraceID,
		Name:         span.Name,
		Kind:         span.Kind,
		ResourceType: span.ResourceType,
		ResourceName: span.ResourceName,
		Attributes:   span.StartAttributes,
	})
	if err != nil {
		return "", fmt.Errorf("start span: %w", err)
	}
	if err := sess.EndSpan(ctx, spanID, span.Status, span.EndAttributes); err != nil {
		return "", fmt.Errorf("end span: %w", err)
	}
	if err := sess.SetDuration(ctx, spanID, span.DurationMs); err != nil {
		return "", fmt.Errorf("set duration: %w", err)
	}
	if err := sess.Commit(); err != nil {
		return "", fmt.Errorf("commit span: %w", err)
	}
	return spanID, nil
}
