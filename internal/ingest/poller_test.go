package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talosprotocol/aiops-engine/internal/auditevent"
	"github.com/talosprotocol/aiops-engine/internal/cursor"
)

type fakeSink struct {
	mu     sync.Mutex
	events []auditevent.Event
}

func (f *fakeSink) ProcessEvent(ev auditevent.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestPoller_DedupAcrossCycles(t *testing.T) {
	items := []map[string]any{
		{"event_id": "e1", "request_id": "t1", "ts": 1},
		{"event_id": "e2", "request_id": "t1", "ts": 2},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := New(DefaultConfig(srv.URL), sink, nil)

	require.NoError(t, p.pollOnce(context.Background()))
	require.NoError(t, p.pollOnce(context.Background()))

	assert.Equal(t, 2, sink.count())
}

func TestPoller_RateLimitReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := New(DefaultConfig(srv.URL), sink, nil)

	err := p.pollOnce(context.Background())
	assert.ErrorIs(t, err, errRateLimited)
}

func TestPoller_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := New(DefaultConfig(srv.URL), sink, nil)

	err := p.pollOnce(context.Background())
	assert.ErrorIs(t, err, errTransient)
}

func TestPoller_EventWithoutIDIsForwardedButNotDeduped(t *testing.T) {
	items := []map[string]any{
		{"request_id": "t1", "ts": 1},
	}
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := New(DefaultConfig(srv.URL), sink, nil)

	require.NoError(t, p.pollOnce(context.Background()))
	require.NoError(t, p.pollOnce(context.Background()))

	assert.Equal(t, 2, sink.count())
}

func TestPoller_WritesCursorOpportunistically(t *testing.T) {
	items := []map[string]any{
		{"event_id": "e1", "request_id": "t1", "ts": 1},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	}))
	defer srv.Close()

	sink := &fakeSink{}
	store := cursor.NewStore(filepath.Join(t.TempDir(), "cursor.json"))
	p := New(DefaultConfig(srv.URL), sink, store)

	require.NoError(t, p.pollOnce(context.Background()))

	v, ok := store.Load()
	assert.True(t, ok)
	assert.Equal(t, "e1", v)
}

func TestRecencySet_BoundedFIFO(t *testing.T) {
	s := newRecencySet(2)
	s.add("a")
	s.add("b")
	s.add("c")

	assert.False(t, s.contains("a"))
	assert.True(t, s.contains("b"))
	assert.True(t, s.contains("c"))
}

func TestPoller_RunRespectsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	}))
	defer srv.Close()

	cfg := DefaultConfig(srv.URL)
	cfg.PollInterval = 5 * time.Millisecond
	sink := &fakeSink{}
	p := New(cfg, sink, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
