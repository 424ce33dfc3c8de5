// Package ledger provides an optional, durable archive of scored
// traces in Postgres. It exists purely to answer "why did integrity
// drop at a given time" after the in-memory ScoreHistory has rolled
// over; the engine's scoring and learning invariants never depend on
// the ledger being reachable. Writes are asynchronous and best-effort:
// a full queue drops a row and counts it rather than blocking the
// control loop.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/google/uuid"

	"github.com/talosprotocol/aiops-engine/internal/telemetry"
)

//go:embed migrations
var migrationsFS embed.FS

// dropCounter is satisfied by *telemetry.Gauges.
type dropCounter interface {
	IncLedgerDropped()
}

type row struct {
	id          string
	traceID     string
	sequenceLen int
	score       float64
	windowSize  int
	scoredAt    time.Time
}

// Ledger is the async Postgres-backed score archive.
type Ledger struct {
	db      *sql.DB
	gauges  dropCounter
	queue   chan row
	done    chan struct{}
	log     *slog.Logger
}

// queueCapacity bounds pending writes; Record drops instead of
// blocking once it fills, so a slow database never stalls scoring.
const queueCapacity = 1024

// Open connects to Postgres, applies embedded migrations, and starts
// the async writer goroutine. The caller must call Close on shutdown.
func Open(ctx context.Context, dsn string, gauges dropCounter) (*Ledger, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	l := &Ledger{
		db:     db,
		gauges: gauges,
		queue:  make(chan row, queueCapacity),
		done:   make(chan struct{}),
		log:    slog.With("component", "ledger"),
	}
	go l.writeLoop()
	return l, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "score_ledger", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return source.Close()
}

// Record enqueues one scored-trace row. Never blocks: when the
// internal queue is full, the oldest pending row is dropped to make
// room for this one, and ledger_dropped_total ticks.
func (l *Ledger) Record(traceID string, sequenceLen int, score float64, windowSize int) {
	r := row{
		id:          uuid.NewString(),
		traceID:     traceID,
		sequenceLen: sequenceLen,
		score:       score,
		windowSize:  windowSize,
		scoredAt:    time.Now().UTC(),
	}

	select {
	case l.queue <- r:
		return
	default:
	}

	// Queue is full: evict the oldest pending row, then retry. If the
	// writer goroutine drains a slot first, this row is dropped instead.
	select {
	case old := <-l.queue:
		l.log.Warn("score ledger queue full, dropping oldest pending row", "trace_id", old.traceID)
		if l.gauges != nil {
			l.gauges.IncLedgerDropped()
		}
	default:
	}

	select {
	case l.queue <- r:
	default:
		l.log.Warn("score ledger queue full, dropping row", "trace_id", traceID)
		if l.gauges != nil {
			l.gauges.IncLedgerDropped()
		}
	}
}

func (l *Ledger) writeLoop() {
	for {
		select {
		case r := <-l.queue:
			l.insert(r)
		case <-l.done:
			return
		}
	}
}

func (l *Ledger) insert(r row) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO score_ledger (id, trace_id, sequence_len, score, window_size, scored_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.id, r.traceID, r.sequenceLen, r.score, r.windowSize, r.scoredAt,
	)
	if err != nil {
		l.log.Warn("failed to write score ledger row", "trace_id", r.traceID, "error", err)
	}
}

// Recent returns the most recent `limit` rows, newest first, for the
// /metrics/recent-scores endpoint.
func (l *Ledger) Recent(limit int) []telemetry.RecentScore {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := l.db.QueryContext(ctx,
		`SELECT trace_id, score, scored_at FROM score_ledger ORDER BY scored_at DESC LIMIT $1`, limit)
	if err != nil {
		l.log.Warn("failed to query recent scores", "error", err)
		return nil
	}
	defer rows.Close()

	var out []telemetry.RecentScore
	for rows.Next() {
		var rec telemetry.RecentScore
		var scoredAt time.Time
		if err := rows.Scan(&rec.TraceID, &rec.Score, &scoredAt); err != nil {
			l.log.Warn("failed to scan recent score row", "error", err)
			continue
		}
		rec.ScoredAt = scoredAt.Format(time.RFC3339Nano)
		out = append(out, rec)
	}
	return out
}

// Close stops the writer goroutine and closes the database connection.
func (l *Ledger) Close() error {
	close(l.done)
	return l.db.Close()
}
