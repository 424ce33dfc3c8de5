// Package cursor persists a small best-effort pointer file. The spec
// treats the cursor as vestigial: it is written on change to reduce
// duplicate work across restarts, but its value is never fed back
// into a poll request, and a missing or unreadable file is never an
// error — the engine always starts by polling the head of the stream.
package cursor

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"
)

// State is the persisted cursor document.
type State struct {
	Cursor    string  `json:"cursor"`
	UpdatedAt float64 `json:"updated_at"`
}

// Store reads and atomically replaces the cursor file at Path.
type Store struct {
	Path string
	log  *slog.Logger
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{Path: path, log: slog.With("component", "cursor")}
}

// Load reads the cursor file, returning ("", false) when it is
// missing or unreadable — never an error to the caller.
func (s *Store) Load() (string, bool) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", false
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Warn("cursor file unreadable, ignoring", "path", s.Path, "error", err)
		return "", false
	}
	return st.Cursor, st.Cursor != ""
}

// Save atomically replaces the cursor file: write to "<path>.tmp",
// then rename over the target. Failures are logged and swallowed;
// the cursor is never load-bearing for correctness.
func (s *Store) Save(value string) {
	st := State{Cursor: value, UpdatedAt: float64(time.Now().UnixNano()) / 1e9}
	data, err := json.Marshal(st)
	if err != nil {
		s.log.Warn("failed to encode cursor", "error", err)
		return
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Warn("failed to write cursor temp file", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		s.log.Warn("failed to rename cursor temp file into place", "path", s.Path, "error", err)
	}
}
