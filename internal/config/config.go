// Package config loads and validates the aiops-engine's configuration
// from built-in defaults, an optional aiops.yaml file merged over them,
// and environment overrides applied last (environment wins over the
// file, and the file wins over the defaults).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is the sentinel for a config file that does not
// exist. Initialize never returns it: a missing aiops.yaml is not
// fatal, and Initialize falls back to defaults.
var ErrConfigNotFound = errors.New("config file not found")

// Config is the fully resolved, validated configuration.
type Config struct {
	Assembler  Assembler `yaml:"assembler"`
	Markov     Markov    `yaml:"markov"`
	Ingest     Ingest    `yaml:"ingest"`
	Control    Control   `yaml:"control"`
	Database   Database  `yaml:"database"`
	HTTPPort   string    `yaml:"-"`
	CursorPath string    `yaml:"-"`
}

// Assembler mirrors assembler.Config in YAML-friendly form.
type Assembler struct {
	MaxTraces       int     `yaml:"max_traces" validate:"omitempty,min=1"`
	TraceTTLSeconds float64 `yaml:"trace_ttl_seconds" validate:"omitempty,min=0"`
}

// Markov mirrors markov.Config in YAML-friendly form.
type Markov struct {
	Alpha          float64 `yaml:"alpha" validate:"omitempty,gt=0"`
	WindowCapacity int     `yaml:"window_capacity" validate:"omitempty,min=1"`
}

// Ingest mirrors ingest.Config in YAML-friendly form.
type Ingest struct {
	AuditURL            string  `yaml:"audit_url"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds" validate:"omitempty,gt=0"`
	BatchSize           int     `yaml:"batch_size" validate:"omitempty,min=1"`
	MaxSeenEvents       int     `yaml:"max_seen_events" validate:"omitempty,min=1"`
}

// Control mirrors control.Config in YAML-friendly form.
type Control struct {
	TickIntervalSeconds  float64 `yaml:"tick_interval_seconds" validate:"omitempty,gt=0"`
	ReadinessThreshold   int     `yaml:"readiness_threshold" validate:"omitempty,min=0"`
	ScoreHistoryCapacity int     `yaml:"score_history_capacity" validate:"omitempty,min=1"`
}

// Database configures the optional Score Ledger. DSN empty disables it.
type Database struct {
	DSN string `yaml:"dsn"`
}

func defaults() *Config {
	return &Config{
		Assembler: Assembler{MaxTraces: 10000, TraceTTLSeconds: 60},
		Markov:    Markov{Alpha: 0.5, WindowCapacity: 2000},
		Ingest: Ingest{
			AuditURL:            "http://talos-audit-service:8001",
			PollIntervalSeconds: 5,
			BatchSize:           200,
			MaxSeenEvents:       200000,
		},
		Control: Control{
			TickIntervalSeconds:  5,
			ReadinessThreshold:   100,
			ScoreHistoryCapacity: 100,
		},
		HTTPPort:   "8080",
		CursorPath: "/data/cursor.json",
	}
}

// Initialize loads aiops.yaml from configDir (if present), applies
// environment overrides and defaults, validates, and returns a ready
// Config. A missing config file is not an error — the engine runs on
// defaults plus environment variables alone.
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := defaults()

	path := filepath.Join(configDir, "aiops.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &fromFile, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s into defaults: %w", path, err)
		}
		log.Info("loaded configuration file", "path", path)
	case os.IsNotExist(err):
		log.Info("no configuration file found, using defaults and environment", "path", path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUDIT_SERVICE_URL"); v != "" {
		cfg.Ingest.AuditURL = v
	}
	if v := os.Getenv("AIOPS_DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CURSOR_PATH"); v != "" {
		cfg.CursorPath = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		cfg.HTTPPort = v
	}
}

// TraceTTL returns the assembler's trace TTL as a time.Duration.
func (c *Config) TraceTTL() time.Duration {
	return time.Duration(c.Assembler.TraceTTLSeconds * float64(time.Second))
}

// PollInterval returns the poller's interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Ingest.PollIntervalSeconds * float64(time.Second))
}

// TickInterval returns the control loop's tick interval as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Control.TickIntervalSeconds * float64(time.Second))
}
