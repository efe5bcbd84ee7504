package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if DIPOLE_CONFIG is set
//  3. env (prefix DIPOLE_, e.g. DIPOLE_POOL_SIZE -> pool_size)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("DIPOLE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Preserve underscores so env keys match the koanf tags on the struct.
	envProvider := env.Provider("DIPOLE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "dipole_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("%w: pool_size must be positive", ErrInvalidConfig)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if cfg.TrialTimeoutMS < 0 || cfg.BarrierTimeoutMS < 0 {
		return nil, fmt.Errorf("%w: timeouts must be non-negative", ErrInvalidConfig)
	}
	if cfg.MinRequired < 0 {
		return nil, fmt.Errorf("%w: min_required must be non-negative", ErrInvalidConfig)
	}
	return &cfg, nil
}
