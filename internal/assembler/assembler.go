// Package assembler groups raw audit events into correlated traces,
// bounding memory by trace count and by per-trace idle time.
package assembler

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
)

// Config controls the Assembler's memory and time bounds.
type Config struct {
	MaxTraces int           // default 10000
	TraceTTL  time.Duration // default 60s
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{MaxTraces: 10000, TraceTTL: 60 * time.Second}
}

// Assembler groups events by correlation key into per-trace buffers,
// evicting or time-expiring traces into a drain queue. All operations
// are safe for concurrent use; no operation returns an error to
// callers — malformed events are dropped, never propagated.
type Assembler struct {
	cfg Config

	mu      sync.RWMutex
	traces  map[string]*Trace
	byAge   lastUpdatedHeap
	drained []*Trace

	log *slog.Logger
}

// New creates an Assembler with the given bounds.
func New(cfg Config) *Assembler {
	if cfg.MaxTraces <= 0 {
		cfg.MaxTraces = DefaultConfig().MaxTraces
	}
	if cfg.TraceTTL <= 0 {
		cfg.TraceTTL = DefaultConfig().TraceTTL
	}
	return &Assembler{
		cfg:    cfg,
		traces: make(map[string]*Trace),
		log:    slog.With("component", "assembler"),
	}
}

// ProcessEvent extracts the event's correlation key and appends it to
// the matching trace, creating one if needed. When creating a new
// trace would exceed MaxTraces, the trace with the smallest
// LastUpdated is evicted (finalized) first. Events with no usable
// correlation key are dropped silently.
func (a *Assembler) ProcessEvent(ev auditevent.Event) {
	key, ok := ev.CorrelationKey()
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tr, exists := a.traces[key]
	if !exists {
		if len(a.traces) >= a.cfg.MaxTraces {
			a.evictOldestLocked()
		}
		tr = newTrace(key)
		tr.heapIndex = -1
		a.traces[key] = tr
		heap.Push(&a.byAge, tr)
	}

	tr.add(ev)
	heap.Fix(&a.byAge, tr.heapIndex)
}

// evictOldestLocked finalizes the trace with the smallest LastUpdated.
// Caller must hold a.mu.
func (a *Assembler) evictOldestLocked() {
	if a.byAge.Len() == 0 {
		return
	}
	oldest := a.byAge[0]
	a.finalizeLocked(oldest)
}

// finalizeLocked removes a trace from the active set and the heap,
// marks it finalized, and appends it to the drain queue. Caller must
// hold a.mu.
func (a *Assembler) finalizeLocked(tr *Trace) {
	if tr.heapIndex >= 0 {
		heap.Remove(&a.byAge, tr.heapIndex)
	}
	delete(a.traces, tr.CorrelationKey)
	tr.Finalized = true
	a.drained = append(a.drained, tr)
}

// Maintenance finalizes every active trace whose idle time exceeds
// TraceTTL. Because the heap orders traces by LastUpdated, it pops
// from the stalest end only while that invariant is violated.
func (a *Assembler) Maintenance() {
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	for a.byAge.Len() > 0 {
		oldest := a.byAge[0]
		if now.Sub(oldest.LastUpdated) <= a.cfg.TraceTTL {
			break
		}
		a.finalizeLocked(oldest)
	}
}

// DrainFinalized returns the accumulated finalized traces in
// finalization order and clears the internal drain queue.
func (a *Assembler) DrainFinalized() []*Trace {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.drained) == 0 {
		return nil
	}
	batch := a.drained
	a.drained = nil
	return batch
}

// ActiveTraceCount returns the number of traces currently held in
// memory, for the control loop's gauge publication.
func (a *Assembler) ActiveTraceCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.traces)
}
