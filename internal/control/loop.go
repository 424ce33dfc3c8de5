// Package control drives the periodic maintenance tick that couples
// the Trace Assembler and the Markov Scoring Engine: it sweeps idle
// traces, drains finalized ones, scores each before learning from it,
// trims the sliding window, and publishes the integrity gauges.
package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/talosprotocol/aiops-engine/internal/assembler"
	"github.com/talosprotocol/aiops-engine/internal/markov"
	"github.com/talosprotocol/aiops-engine/internal/telemetry"
)

// LedgerWriter is satisfied by *ledger.Ledger. Implementations must
// never block the calling goroutine — a full internal queue should
// drop the row and count it, not stall the tick.
type LedgerWriter interface {
	Record(traceID string, sequenceLen int, score float64, windowSize int)
}

// Config controls the tick cadence and readiness threshold.
type Config struct {
	TickInterval         time.Duration // default 5s
	ReadinessThreshold   int           // default 100
	ScoreHistoryCapacity int           // default 100
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{TickInterval: 5 * time.Second, ReadinessThreshold: 100, ScoreHistoryCapacity: 100}
}

// Loop is the periodic control loop.
type Loop struct {
	cfg Config

	assembler *assembler.Assembler
	engine    *markov.Engine
	history   *ScoreHistory
	gauges    *telemetry.Gauges
	ledger    LedgerWriter // may be nil

	log *slog.Logger
}

// New creates a Loop over the given components. ledger may be nil,
// disabling durable score history entirely.
func New(cfg Config, asm *assembler.Assembler, engine *markov.Engine, gauges *telemetry.Gauges, ledger LedgerWriter) *Loop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.ReadinessThreshold <= 0 {
		cfg.ReadinessThreshold = 100
	}
	if cfg.ScoreHistoryCapacity <= 0 {
		cfg.ScoreHistoryCapacity = 100
	}
	return &Loop{
		cfg:       cfg,
		assembler: asm,
		engine:    engine,
		history:   NewScoreHistory(cfg.ScoreHistoryCapacity),
		gauges:    gauges,
		ledger:    ledger,
		log:       slog.With("component", "control-loop"),
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	l.log.Info("control loop started", "interval", l.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("control loop stopping")
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick runs exactly one maintenance/score/learn/publish cycle. It is
// exported indirectly via Run but kept unexported and side-effect
// only, so tests can drive it deterministically without a ticker.
func (l *Loop) tick() {
	l.assembler.Maintenance()

	drained := l.assembler.DrainFinalized()
	for _, tr := range drained {
		score := l.engine.ScoreTrace(tr.Events)
		l.history.Add(score)
		l.engine.AddTrace(tr.Events)

		if l.engine.WindowSize() > l.engine.Capacity() {
			l.engine.ExpireOldest()
		}

		if l.ledger != nil {
			l.ledger.Record(tr.CorrelationKey, len(tr.Events), score, l.engine.WindowSize())
		}
	}

	windowSize := l.engine.WindowSize()
	ready := windowSize > l.cfg.ReadinessThreshold

	integrity := 1.0
	if l.history.Len() > 0 {
		integrity = 1.0 / (1.0 + l.history.Mean())
	}

	l.gauges.Publish(telemetry.Snapshot{
		Integrity:      integrity,
		ModelReady:     ready,
		ActiveTraces:   l.assembler.ActiveTraceCount(),
		WindowSize:     windowSize,
		StateCount:     l.engine.StateCount(),
		EdgeCount:      l.engine.EdgeCount(),
		RecentAvgScore: l.history.Mean(),
	})
}

// Tick runs one cycle synchronously; exposed for tests and for a
// caller that wants to force an immediate pass (e.g. before shutdown).
func (l *Loop) Tick() {
	l.tick()
}
