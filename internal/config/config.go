// Package config defines process configuration and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load() layers an optional YAML file and environment variables on top.
// - External errors are wrapped via this package's sentinel kinds.
package config

import (
	"runtime"
)

// Config contains process configuration for the trial engine.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// PoolSize sets the number of trial workers.
	PoolSize int `koanf:"pool_size"`

	// QueueSize bounds the in-memory job backlog.
	QueueSize int `koanf:"queue_size"`

	// TrialTimeoutMS bounds one trial's wall-clock time. Zero disables the
	// per-trial deadline.
	TrialTimeoutMS int `koanf:"trial_timeout_ms"`

	// BarrierTimeoutMS bounds the wait for all trials to resolve. Zero waits
	// indefinitely.
	BarrierTimeoutMS int `koanf:"barrier_timeout_ms"`

	// MinRequired is the quorum of successful trials needed for a valid
	// aggregate. Zero requires every trial to succeed.
	MinRequired int `koanf:"min_required"`

	// ArchivePath is the SQLite file completed runs are written to. Empty
	// disables archiving.
	ArchivePath string `koanf:"archive_path"`

	// MetricsAddr exposes a Prometheus scrape endpoint when non-empty,
	// e.g. ":9091".
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		PoolSize:  runtime.NumCPU(),
		QueueSize: 1024,
	}
}
