package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// QueueStats is a consistent snapshot of queue counters.
type QueueStats struct {
	Total    uint64  `json:"total"`
	Dropped  uint64  `json:"dropped"`
	Capacity uint64  `json:"capacity"`
	DropRate float64 `json:"drop_rate"`
	Pending  int64   `json:"pending"`
}

// Queue is a fixed-capacity FIFO of spans. Enqueue never blocks: when the
// queue is full the span is dropped and counted.
type Queue struct {
	ch      chan SpanRecord
	metrics *Metrics

	mu      sync.Mutex // protects total and dropped
	total   uint64
	dropped uint64

	pending atomic.Int64 // accepted but not yet marked Done
}

// NewQueue creates a queue. capacity <= 0 uses DefaultQueueSize.
func NewQueue(capacity int, m *Metrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{ch: make(chan SpanRecord, capacity), metrics: m}
}

// Enqueue offers s to the queue and reports whether it was accepted.
func (q *Queue) Enqueue(s SpanRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.total++
	q.metrics.enqueued()
	q.pending.Add(1)
	select {
	case q.ch <- s:
		return true
	default:
		q.pending.Add(-1)
		q.dropped++
		q.metrics.droppedSpan()
		return false
	}
}

// Dequeue waits up to timeout for a span. It returns false on timeout or
// when ctx is done.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (SpanRecord, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-q.ch:
		return s, true
	case <-timer.C:
		return SpanRecord{}, false
	case <-ctx.Done():
		return SpanRecord{}, false
	}
}

// Done marks one dequeued span as processed.
func (q *Queue) Done() {
	q.pending.Add(-1)
}

// Len returns the number of spans waiting in the queue.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := QueueStats{
		Total:    q.total,
		Dropped:  q.dropped,
		Capacity: uint64(cap(q.ch)),
		Pending:  q.pending.Load(),
	}
	if s.Total > 0 {
		s.DropRate = float64(s.Dropped) / float64(s.Total)
	}
	return s
}
