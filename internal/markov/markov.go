// Package markov maintains a sparse, incremental first-order Markov
// model of state sequences over a bounded sliding window of recently
// finalized traces, and scores new sequences against it.
package markov

import (
	"container/list"
	"log/slog"
	"math"
	"sync"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
)

// State is the "actor:action:outcome" triple rendered by auditevent.
type State = string

// transition is an ordered pair of adjacent states.
type transition struct {
	src, dst State
}

// anomalyPenalty is charged for a transition whose probability comes
// back zero — only reachable when the state set itself is empty.
const anomalyPenalty = 100.0

// Config controls smoothing and the sliding window's capacity.
type Config struct {
	Alpha          float64 // Laplace smoothing constant, default 0.5
	WindowCapacity int     // default 2000 sequences
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{Alpha: 0.5, WindowCapacity: 2000}
}

// Engine is the sparse incremental Markov model.
type Engine struct {
	cfg Config

	mu         sync.RWMutex
	edgeCounts map[transition]int
	outCounts  map[State]int
	states     map[State]struct{}
	window     *list.List // of []State, oldest at Front

	log *slog.Logger
}

// New creates an Engine with the given parameters.
func New(cfg Config) *Engine {
	if cfg.Alpha <= 0 {
		cfg.Alpha = DefaultConfig().Alpha
	}
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = DefaultConfig().WindowCapacity
	}
	return &Engine{
		cfg:        cfg,
		edgeCounts: make(map[transition]int),
		outCounts:  make(map[State]int),
		states:     make(map[State]struct{}),
		window:     list.New(),
		log:        slog.With("component", "markov"),
	}
}

// ExtractSequence maps each event to its State. Events that fail to
// yield a usable state are skipped, never abort the extraction.
func ExtractSequence(events []auditevent.Event) []State {
	seq := make([]State, 0, len(events))
	for _, ev := range events {
		seq = append(seq, ev.State())
	}
	return seq
}

// AddTrace extracts a sequence from events and admits it into the
// sliding window, incrementing the sparse transition counts. A trace
// that extracts to an empty sequence is a no-op.
func (e *Engine) AddTrace(events []auditevent.Event) {
	seq := ExtractSequence(events)
	if len(seq) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.window.PushBack(seq)
	for i := 0; i < len(seq)-1; i++ {
		src, dst := seq[i], seq[i+1]
		e.edgeCounts[transition{src, dst}]++
		e.outCounts[src]++
		e.states[src] = struct{}{}
		e.states[dst] = struct{}{}
	}
}

// ExpireOldest removes the oldest sequence from the window and
// decrements its transition counts, clamping at zero. Clamping is a
// safeguard only: under the add/expire symmetry invariant it is never
// exercised in practice.
func (e *Engine) ExpireOldest() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireOldestLocked()
}

func (e *Engine) expireOldestLocked() {
	front := e.window.Front()
	if front == nil {
		return
	}
	e.window.Remove(front)
	seq := front.Value.([]State)

	for i := 0; i < len(seq)-1; i++ {
		src, dst := seq[i], seq[i+1]
		key := transition{src, dst}
		if e.edgeCounts[key] > 0 {
			e.edgeCounts[key]--
		}
		if e.outCounts[src] > 0 {
			e.outCounts[src]--
		}
	}
}

// WindowSize returns the number of sequences currently held in the
// sliding window.
func (e *Engine) WindowSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.window.Len()
}

// Capacity returns the configured sliding-window capacity.
func (e *Engine) Capacity() int {
	return e.cfg.WindowCapacity
}

// StateCount and EdgeCount expose model size for the metrics surface.
func (e *Engine) StateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.states)
}

func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, c := range e.edgeCounts {
		if c > 0 {
			n++
		}
	}
	return n
}

// GetProbability returns the Laplace-smoothed transition probability
// P(dst | src). Returns 0.0 when no state has ever been observed.
func (e *Engine) GetProbability(src, dst State) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.probabilityLocked(src, dst)
}

func (e *Engine) probabilityLocked(src, dst State) float64 {
	numStates := len(e.states)
	if numStates == 0 {
		return 0.0
	}
	count := e.edgeCounts[transition{src, dst}]
	totalOut := e.outCounts[src]
	return (float64(count) + e.cfg.Alpha) / (float64(totalOut) + e.cfg.Alpha*float64(numStates))
}

// ScoreTrace extracts a sequence and returns the mean per-step
// negative-log-probability, i.e. higher is more anomalous. Traces
// shorter than two events score 0.0.
func (e *Engine) ScoreTrace(events []auditevent.Event) float64 {
	seq := ExtractSequence(events)
	if len(seq) < 2 {
		return 0.0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var total float64
	for i := 0; i < len(seq)-1; i++ {
		p := e.probabilityLocked(seq[i], seq[i+1])
		if p > 0 {
			total += -math.Log(p)
		} else {
			total += anomalyPenalty
		}
	}
	return total / float64(len(seq))
}
