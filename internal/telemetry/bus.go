package telemetry

import (
	"sync"
	"time"
)

// SpanEvent is a span that the writer has persisted.
type SpanEvent struct {
	SpanID      string     `json:"span_id"`
	Span        SpanRecord `json:"span"`
	PersistedAt time.Time  `json:"persisted_at"`
}

// Bus fans out persisted spans to live subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan *SpanEvent]chan *SpanEvent
}

// NewBus creates a span event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[<-chan *SpanEvent]chan *SpanEvent)}
}

// Subscribe registers a listener. The caller must call Unsubscribe when done.
func (b *Bus) Subscribe() <-chan *SpanEvent {
	ch := make(chan *SpanEvent, 64)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan *SpanEvent) {
	b.mu.Lock()
	if send, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(send)
	}
	b.mu.Unlock()
}

// Publish delivers ev to every subscriber without blocking. Subscribers
// that fall behind miss events.
func (b *Bus) Publish(ev *SpanEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
