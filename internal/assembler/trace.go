package assembler

import (
	"sort"
	"time"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
)

// Trace is an ordered sequence of events sharing a correlation key.
// It is mutable while held by the Assembler and immutable once
// Finalized is set.
type Trace struct {
	CorrelationKey string
	Events         []auditevent.Event
	LastUpdated    time.Time
	Finalized      bool

	// heapIndex is maintained by lastUpdatedHeap; -1 when not in the heap.
	heapIndex int
}

func newTrace(key string) *Trace {
	return &Trace{CorrelationKey: key, LastUpdated: time.Now()}
}

// add appends an event and re-sorts the buffer by (ts, event_id)
// ascending, keeping the invariant that observers always see sorted
// traces.
func (t *Trace) add(ev auditevent.Event) {
	t.Events = append(t.Events, ev)
	sort.SliceStable(t.Events, func(i, j int) bool {
		ti, tj := t.Events[i].RawTimestamp(), t.Events[j].RawTimestamp()
		if ti != tj {
			return ti < tj
		}
		idI, _ := t.Events[i].ID()
		idJ, _ := t.Events[j].ID()
		return idI < idJ
	})
	t.LastUpdated = time.Now()
}

// Duration is zero for fewer than two events; otherwise the elapsed
// seconds between the first and last event's parsed timestamp.
// Unparseable timestamps yield zero.
func (t *Trace) Duration() float64 {
	if len(t.Events) < 2 {
		return 0.0
	}
	start, ok := t.Events[0].ParsedTimestamp()
	if !ok {
		return 0.0
	}
	end, ok := t.Events[len(t.Events)-1].ParsedTimestamp()
	if !ok {
		return 0.0
	}
	return end.Sub(start).Seconds()
}
