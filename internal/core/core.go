// Package core wires the engine's components into a single value
// constructed once at startup. Nothing in this module keeps state in
// package-level variables; every goroutine is handed the *Core it needs.
package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talosprotocol/aiops-engine/internal/assembler"
	"github.com/talosprotocol/aiops-engine/internal/config"
	"github.com/talosprotocol/aiops-engine/internal/control"
	"github.com/talosprotocol/aiops-engine/internal/cursor"
	"github.com/talosprotocol/aiops-engine/internal/ingest"
	"github.com/talosprotocol/aiops-engine/internal/ledger"
	"github.com/talosprotocol/aiops-engine/internal/markov"
	"github.com/talosprotocol/aiops-engine/internal/telemetry"
)

// Core holds every long-lived component the engine needs, built once
// from a validated Config. It owns the optional Ledger's lifecycle.
type Core struct {
	Config *config.Config

	Assembler *assembler.Assembler
	Engine    *markov.Engine
	Cursor    *cursor.Store
	Poller    *ingest.Poller
	Loop      *control.Loop
	Gauges    *telemetry.Gauges
	Telemetry *telemetry.Server
	Ledger    *ledger.Ledger // nil when Config.Database.DSN is empty

	log *slog.Logger
}

// Build constructs a Core from cfg. When cfg.Database.DSN is set, it
// opens the Score Ledger and runs its migrations; a ledger failure is
// fatal since the caller asked for durability explicitly.
func Build(ctx context.Context, cfg *config.Config) (*Core, error) {
	log := slog.With("component", "core")

	gauges := telemetry.NewGauges()

	asm := assembler.New(assembler.Config{
		MaxTraces: cfg.Assembler.MaxTraces,
		TraceTTL:  cfg.TraceTTL(),
	})

	engine := markov.New(markov.Config{
		Alpha:          cfg.Markov.Alpha,
		WindowCapacity: cfg.Markov.WindowCapacity,
	})

	cursorStore := cursor.NewStore(cfg.CursorPath)

	poller := ingest.New(ingest.Config{
		AuditURL:      cfg.Ingest.AuditURL,
		PollInterval:  cfg.PollInterval(),
		BatchSize:     cfg.Ingest.BatchSize,
		MaxSeenEvents: cfg.Ingest.MaxSeenEvents,
	}, asm, cursorStore)

	var led *ledger.Ledger
	if cfg.Database.DSN != "" {
		l, err := ledger.Open(ctx, cfg.Database.DSN, gauges)
		if err != nil {
			return nil, fmt.Errorf("open score ledger: %w", err)
		}
		led = l
		log.Info("score ledger enabled")
	} else {
		log.Info("score ledger disabled, no database.dsn configured")
	}

	var ledgerWriter control.LedgerWriter
	if led != nil {
		ledgerWriter = led
	}
	loop := control.New(control.Config{
		TickInterval:         cfg.TickInterval(),
		ReadinessThreshold:   cfg.Control.ReadinessThreshold,
		ScoreHistoryCapacity: cfg.Control.ScoreHistoryCapacity,
	}, asm, engine, gauges, ledgerWriter)

	var recentProvider telemetry.RecentScoreProvider
	if led != nil {
		recentProvider = led
	}
	telemetrySrv := telemetry.NewServer(gauges, recentProvider)

	return &Core{
		Config:    cfg,
		Assembler: asm,
		Engine:    engine,
		Cursor:    cursorStore,
		Poller:    poller,
		Loop:      loop,
		Gauges:    gauges,
		Telemetry: telemetrySrv,
		Ledger:    led,
		log:       log,
	}, nil
}

// Close releases resources owned by Core. Safe to call even when the
// ledger was never opened.
func (c *Core) Close() error {
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}
