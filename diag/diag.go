// Package diag provides a low-overhead event collector for per-run
// diagnostics (perf counters, store-open/close timing, window/exclude
// rejections), plus colorized console rendering of those events.
//
// A disabled collector costs nothing beyond a branch, and event data is
// carried as an open map rather than a fixed struct so new counters don't
// require touching every call site.
package diag

import (
	"sync"
	"time"
)

// Event names. Counters mirror the original engine's perf_stats fields
// (match_calls, early_breaks) plus store-level bookkeeping the original
// only logged ad hoc every million cookies.
const (
	StoreOpened    = "store/opened"
	StoreCompleted = "store/completed"
	SubjectSkipped = "subject/excluded"
	MatchCalls     = "engine/match-calls"
	EarlyBreaks    = "engine/early-breaks"
	StateMapMerge  = "controller/state-merge"
)

// Event is one diagnostic occurrence.
type Event struct {
	Name     string
	At       time.Time
	Duration time.Duration
	Data     map[string]interface{}
}

// Handler processes Events as they occur.
type Handler func(Event)

// Collector accumulates Events and forwards each to an optional Handler.
// A nil handler disables forwarding but Collector still records locally;
// Events and Totals read the recorded events back.
type Collector struct {
	mu      sync.Mutex
	events  []Event
	handler Handler
}

// NewCollector returns a Collector that forwards to handler (may be nil).
func NewCollector(handler Handler) *Collector {
	return &Collector{handler: handler}
}

// Add records event, invoking the handler outside the lock.
func (c *Collector) Add(event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	if c.handler != nil {
		c.handler(event)
	}
}

// Count is a convenience wrapper around Add for a single named counter
// increment.
func (c *Collector) Count(name string, n int64) {
	c.Add(Event{Name: name, At: time.Now(), Data: map[string]interface{}{"n": n}})
}

// Events returns a copy of every event recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Totals sums the "n" field of every event with the given name.
func (c *Collector) Totals(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.events {
		if e.Name != name {
			continue
		}
		if n, ok := e.Data["n"].(int64); ok {
			total += n
		}
	}
	return total
}
