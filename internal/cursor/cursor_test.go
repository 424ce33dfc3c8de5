package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_LoadMissingIsNotError(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cursor.json"))
	v, ok := s.Load()
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cursor.json"))
	s.Save("abc123")

	v, ok := s.Load()
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)
}

func TestStore_LoadCorruptFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	s := NewStore(path)
	s.Save("first")

	// Corrupt it directly; Load must degrade gracefully.
	corrupt(t, path)

	v, ok := s.Load()
	assert.False(t, ok)
	assert.Empty(t, v)
}

func corrupt(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
}
