package telemetry

import (
	"sync"
	"time"
)

// Tracking is the in-flight record for one query on one connection.
type Tracking struct {
	ConnID    string
	StartTime time.Time
	Statement string
	Args      []any
	Bulk      bool
}

// Tracker maps a live connection identity to its in-flight query. A
// connection runs one statement at a time, so each identity holds at most
// one entry: Idle -> Tracking on Begin, back to Idle on Pop.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*Tracking
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*Tracking)}
}

// Begin records t for its connection, replacing any stale entry.
func (tr *Tracker) Begin(t *Tracking) {
	tr.mu.Lock()
	tr.entries[t.ConnID] = t
	tr.mu.Unlock()
}

// Pop removes and returns the entry for connID.
func (tr *Tracker) Pop(connID string) (*Tracking, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	t, ok := tr.entries[connID]
	if ok {
		delete(tr.entries, connID)
	}
	return t, ok
}

// Len returns the number of connections with a query in flight.
func (tr *Tracker) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.entries)
}
