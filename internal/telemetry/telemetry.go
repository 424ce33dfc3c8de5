// Package telemetry exposes the engine's health, integrity, and
// Prometheus metrics surface.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Gauges holds the three published gauges plus the ledger-drop
// counter, registered against a private registry so tests can spin up
// independent instances without colliding on prometheus.DefaultRegisterer.
type Gauges struct {
	Registry *prometheus.Registry

	integrity     prometheus.Gauge
	modelReady    prometheus.Gauge
	tracesTracked prometheus.Gauge
	ledgerDropped prometheus.Counter

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// NewGauges creates and registers the gauges on a fresh registry.
func NewGauges() *Gauges {
	reg := prometheus.NewRegistry()
	g := &Gauges{
		Registry: reg,
		integrity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiops_integrity_score",
			Help: "System integrity score in (0, 1], 1.0 is perfectly normal.",
		}),
		modelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiops_model_ready",
			Help: "1 when the Markov model has absorbed enough traces to be trusted, else 0.",
		}),
		tracesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aiops_traces_tracked",
			Help: "Number of traces currently held by the assembler.",
		}),
		ledgerDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiops_ledger_dropped_total",
			Help: "Score ledger rows dropped because the async write channel was full.",
		}),
	}
	reg.MustRegister(g.integrity, g.modelReady, g.tracesTracked, g.ledgerDropped)
	return g
}

// Snapshot is the set of values a tick publishes; publishing is kept
// outside long critical sections so HTTP reads stay responsive.
type Snapshot struct {
	Integrity      float64
	ModelReady     bool
	ActiveTraces   int
	WindowSize     int
	StateCount     int
	EdgeCount      int
	RecentAvgScore float64
}

// Publish atomically updates the gauges and the in-memory snapshot
// used by the JSON handlers.
func (g *Gauges) Publish(snap Snapshot) {
	g.snapMu.Lock()
	g.snapshot = snap
	g.snapMu.Unlock()

	g.integrity.Set(snap.Integrity)
	if snap.ModelReady {
		g.modelReady.Set(1)
	} else {
		g.modelReady.Set(0)
	}
	g.tracesTracked.Set(float64(snap.ActiveTraces))
}

// IncLedgerDropped records one dropped Score Ledger row.
func (g *Gauges) IncLedgerDropped() {
	g.ledgerDropped.Inc()
}

// Current returns the most recently published snapshot.
func (g *Gauges) Current() Snapshot {
	g.snapMu.RLock()
	defer g.snapMu.RUnlock()
	return g.snapshot
}
