package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Assembler.MaxTraces)
	assert.Equal(t, 0.5, cfg.Markov.Alpha)
	assert.Equal(t, "http://talos-audit-service:8001", cfg.Ingest.AuditURL)
}

func TestInitialize_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlBody := `
assembler:
  max_traces: 500
markov:
  alpha: 0.25
ingest:
  audit_url: "http://example.local:9000"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aiops.yaml"), []byte(yamlBody), 0o644))

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Assembler.MaxTraces)
	assert.Equal(t, 0.25, cfg.Markov.Alpha)
	assert.Equal(t, "http://example.local:9000", cfg.Ingest.AuditURL)
	// Unset-by-file fields keep their defaults.
	assert.Equal(t, 2000, cfg.Markov.WindowCapacity)
}

func TestInitialize_EnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlBody := "ingest:\n  audit_url: \"http://from-file:9000\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aiops.yaml"), []byte(yamlBody), 0o644))

	t.Setenv("AUDIT_SERVICE_URL", "http://from-env:1234")
	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:1234", cfg.Ingest.AuditURL)
}

func TestValidate_RejectsZeroAlpha(t *testing.T) {
	cfg := defaults()
	cfg.Markov.Alpha = 0
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidate_RejectsBadAuditURL(t *testing.T) {
	cfg := defaults()
	cfg.Ingest.AuditURL = "not-a-url"
	err := Validate(cfg)
	assert.Error(t, err)
}
