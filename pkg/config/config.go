// Package config loads the control plane's runtime configuration from
// environment variables (the variables named in spec.md §6), using koanf's
// env and structs providers so that struct defaults and environment
// overrides compose the same way the teacher project's config layer does.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// OverlapPolicy and CatchupPolicy mirror the enums in spec.md §3/§4.2; they
// live here too so defaults can be typed instead of stringly-typed.
type OverlapPolicy string

const (
	OverlapAllow OverlapPolicy = "allow"
	OverlapSkip  OverlapPolicy = "skip"
	OverlapQueue OverlapPolicy = "queue"
)

type CatchupPolicy string

const (
	CatchupNone           CatchupPolicy = "none"
	CatchupFireImmediate  CatchupPolicy = "fire_immediately"
	CatchupSpread         CatchupPolicy = "spread"
)

// Config is the process-wide configuration for the Scheduler and Executor,
// sourced from the environment variables listed in spec.md §6.
type Config struct {
	TickMS               int           `koanf:"tick_ms"`
	LookaheadMS          int           `koanf:"lookahead_ms"`
	MaxCatchupPerTick    int           `koanf:"max_catchup_per_tick"`
	DefaultOverlapPolicy OverlapPolicy `koanf:"default_overlap_policy"`
	DefaultCatchupPolicy CatchupPolicy `koanf:"default_catchup_policy"`
	DefaultJitterMS      int           `koanf:"default_jitter_ms"`
	MaxRetryDelayMS      int           `koanf:"max_retry_delay_ms"`
	IdempotencyCacheTTLS int           `koanf:"idempotency_cache_ttl_s"`
}

// Tick returns TickMS as a time.Duration.
func (c *Config) Tick() time.Duration { return time.Duration(c.TickMS) * time.Millisecond }

// Lookahead returns LookaheadMS as a time.Duration.
func (c *Config) Lookahead() time.Duration { return time.Duration(c.LookaheadMS) * time.Millisecond }

// MaxRetryDelay returns MaxRetryDelayMS as a time.Duration.
func (c *Config) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelayMS) * time.Millisecond
}

// IdempotencyCacheTTL returns IdempotencyCacheTTLS as a time.Duration.
func (c *Config) IdempotencyCacheTTL() time.Duration {
	return time.Duration(c.IdempotencyCacheTTLS) * time.Second
}

// Default returns the defaults named in spec.md §6.
func Default() *Config {
	return &Config{
		TickMS:               1000,
		LookaheadMS:          60000,
		MaxCatchupPerTick:    100,
		DefaultOverlapPolicy: OverlapAllow,
		DefaultCatchupPolicy: CatchupNone,
		DefaultJitterMS:      0,
		MaxRetryDelayMS:      30000,
		IdempotencyCacheTTLS: 24 * 60 * 60,
	}
}

// Load builds a Config from Default(), overlaid with the environment
// variables named in spec.md §6 (TICK_MS, LOOKAHEAD_MS, ...). Unset
// variables leave the default untouched.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	names := map[string]struct{}{
		"TICK_MS": {}, "LOOKAHEAD_MS": {}, "MAX_CATCHUP_PER_TICK": {},
		"DEFAULT_OVERLAP_POLICY": {}, "DEFAULT_CATCHUP_POLICY": {},
		"DEFAULT_JITTER_MS": {}, "MAX_RETRY_DELAY_MS": {}, "IDEMPOTENCY_CACHE_TTL_S": {},
	}
	envProvider := env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			if _, ok := names[k]; !ok {
				return "", nil
			}
			return strings.ToLower(k), v
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}
	cfg := Default()
	if v := k.String("tick_ms"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.TickMS); err != nil {
			return nil, fmt.Errorf("config: TICK_MS: %w", err)
		}
	}
	if v := k.String("lookahead_ms"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.LookaheadMS); err != nil {
			return nil, fmt.Errorf("config: LOOKAHEAD_MS: %w", err)
		}
	}
	if v := k.String("max_catchup_per_tick"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.MaxCatchupPerTick); err != nil {
			return nil, fmt.Errorf("config: MAX_CATCHUP_PER_TICK: %w", err)
		}
	}
	if v := k.String("default_overlap_policy"); v != "" {
		cfg.DefaultOverlapPolicy = OverlapPolicy(v)
	}
	if v := k.String("default_catchup_policy"); v != "" {
		cfg.DefaultCatchupPolicy = CatchupPolicy(v)
	}
	if v := k.String("default_jitter_ms"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.DefaultJitterMS); err != nil {
			return nil, fmt.Errorf("config: DEFAULT_JITTER_MS: %w", err)
		}
	}
	if v := k.String("max_retry_delay_ms"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.MaxRetryDelayMS); err != nil {
			return nil, fmt.Errorf("config: MAX_RETRY_DELAY_MS: %w", err)
		}
	}
	if v := k.String("idempotency_cache_ttl_s"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.IdempotencyCacheTTLS); err != nil {
			return nil, fmt.Errorf("config: IDEMPOTENCY_CACHE_TTL_S: %w", err)
		}
	}
	return cfg, nil
}
