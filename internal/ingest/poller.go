// Package ingest polls the upstream audit service for the newest
// batch of events at a fixed interval, deduplicates by event_id
// against a bounded recency set, and forwards survivors downstream.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
	"github.com/talosprotocol/aiops-engine/internal/cursor"
)

// Config controls poll cadence, batch size, and the dedup set's bound.
type Config struct {
	AuditURL       string
	PollInterval   time.Duration // default 5s
	BackoffDelay   time.Duration // default 5s, applied on transient failure or 429
	BatchSize      int           // default 200
	MaxSeenEvents  int           // default 200000
	RequestTimeout time.Duration // default 10s
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig(auditURL string) Config {
	return Config{
		AuditURL:       auditURL,
		PollInterval:   5 * time.Second,
		BackoffDelay:   5 * time.Second,
		BatchSize:      200,
		MaxSeenEvents:  200000,
		RequestTimeout: 10 * time.Second,
	}
}

// Sink receives deduplicated events. *assembler.Assembler satisfies
// this via ProcessEvent.
type Sink interface {
	ProcessEvent(ev auditevent.Event)
}

// Poller runs a fixed-interval ingestion cycle: poll the audit
// service, deduplicate by event ID, and forward survivors to the sink.
type Poller struct {
	cfg    Config
	sink   Sink
	cursor *cursor.Store
	client *http.Client
	log    *slog.Logger

	seen *recencySet
}

// New creates a Poller. cursorStore may be nil, disabling cursor
// writes entirely (the cursor is never required for correctness).
func New(cfg Config, sink Sink, cursorStore *cursor.Store) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.MaxSeenEvents <= 0 {
		cfg.MaxSeenEvents = 200000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Poller{
		cfg:    cfg,
		sink:   sink,
		cursor: cursorStore,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		log:    slog.With("component", "ingest"),
		seen:   newRecencySet(cfg.MaxSeenEvents),
	}
}

// errRateLimited and errTransient classify poll-cycle failures so Run
// can apply the documented backoff without distinguishing causes at
// the call site.
var (
	errRateLimited = errors.New("audit service rate limited the request")
	errTransient   = errors.New("transient upstream failure")
)

// Run loops until ctx is cancelled, polling every PollInterval and
// backing off by BackoffDelay after a rate-limit or transient error.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("poller started", "interval", p.cfg.PollInterval)
	for {
		if err := p.pollOnce(ctx); err != nil {
			p.log.Error("poll cycle error", "error", err)
			if !sleepOrDone(ctx, p.cfg.BackoffDelay) {
				return
			}
			continue
		}
		if !sleepOrDone(ctx, p.cfg.PollInterval) {
			return
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type eventsResponse struct {
	Items []auditevent.Event `json:"items"`
}

// pollOnce issues one GET and forwards newly-seen events to the sink.
func (p *Poller) pollOnce(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	endpoint := p.cfg.AuditURL + "/api/events?" + url.Values{
		"limit": {strconv.Itoa(p.cfg.BatchSize)},
	}.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.log.Warn("rate limited by audit service, backing off")
		return errRateLimited
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", errTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from audit service", resp.StatusCode)
	}

	var decoded eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	newCount := 0
	for _, ev := range decoded.Items {
		id, ok := ev.ID()
		if !ok {
			p.sink.ProcessEvent(ev)
			continue
		}
		if p.seen.contains(id) {
			continue
		}
		p.seen.add(id)
		p.sink.ProcessEvent(ev)
		newCount++
	}

	if newCount > 0 {
		p.log.Info("ingested new events", "count", newCount)
		if p.cursor != nil && len(decoded.Items) > 0 {
			if id, ok := decoded.Items[0].ID(); ok {
				p.cursor.Save(id)
			}
		}
	}
	return nil
}
