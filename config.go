package forkcache

import (
	"fmt"
	"strings"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/providers"
)

// CacheConfig declares the caller's caching intent for one session. It is
// validated against provider capabilities before any segment is planned, so a
// config that passes validation never produces a wire request the provider
// would reject.
type CacheConfig struct {
	// Enabled turns prompt caching on for the session. A disabled config
	// always validates; caching directives are simply not emitted.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// DefaultScope is the most permissive content scope any segment may
	// carry. Defaults to system-only when empty.
	DefaultScope providers.Scope `json:"default_scope,omitempty" yaml:"default_scope,omitempty"`

	// DefaultTTL is the cache lifetime requested for segments that do not
	// set their own. Defaults to session when empty.
	DefaultTTL providers.TTL `json:"default_ttl,omitempty" yaml:"default_ttl,omitempty"`

	// MaxBreakpoints caps how many cache boundaries the session may plan.
	// Zero means no caller-imposed cap beyond the provider limit.
	MaxBreakpoints int `json:"max_breakpoints,omitempty" yaml:"max_breakpoints,omitempty"`

	// Segments declared up front. Segments may also be added at runtime
	// through a segments.Manager; declared ones are validated here.
	Segments []SegmentConfig `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// SegmentConfig declares one cacheable segment inside a CacheConfig.
type SegmentConfig struct {
	Key             string          `json:"key" yaml:"key"`
	EstimatedTokens int             `json:"estimated_tokens,omitempty" yaml:"estimated_tokens,omitempty"`
	TTL             providers.TTL   `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Scope           providers.Scope `json:"scope,omitempty" yaml:"scope,omitempty"`

	// Force accepts degraded caching for this segment: below-floor estimates
	// and scope widening become warnings instead of errors.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
}

// withDefaults fills the zero-value fields callers are allowed to omit.
func (c CacheConfig) withDefaults() CacheConfig {
	if c.DefaultScope == "" {
		c.DefaultScope = providers.ScopeSystemOnly
	}
	if c.DefaultTTL == "" {
		c.DefaultTTL = providers.TTLSession
	}
	return c
}

// ValidationResult reports the outcome of config validation. Errors block
// the fork; warnings accompany accepted-but-degraded configs.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ConfigError wraps blocking validation errors so callers can distinguish a
// rejected config from a runtime failure.
type ConfigError struct {
	Errors []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid cache config: %s", strings.Join(e.Errors, "; "))
}

// ValidateCacheConfig checks cfg against the capabilities of provider/model.
// Validation is deliberately synchronous and provider-aware: everything that
// would make the provider reject or silently ignore a caching directive is
// caught here, before any tokens are spent.
func ValidateCacheConfig(cfg CacheConfig, provider providers.Provider, model string, caps capabilities.Capabilities) ValidationResult {
	res := ValidationResult{Valid: true}
	fail := func(format string, args ...interface{}) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...interface{}) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	cfg = cfg.withDefaults()

	if !cfg.Enabled {
		return res
	}

	if !cfg.DefaultScope.Valid() {
		fail("unknown default_scope %q", cfg.DefaultScope)
	}
	if !cfg.DefaultTTL.Valid() {
		fail("unknown default_ttl %q", cfg.DefaultTTL)
	}

	if !caps.Supported {
		warn("provider %s does not support prompt caching for model %q; caching directives will be ignored", provider, model)
		return res
	}

	if caps.MaxBreakpoints > 0 && cfg.MaxBreakpoints > caps.MaxBreakpoints {
		fail("max_breakpoints %d exceeds provider limit (%d)", cfg.MaxBreakpoints, caps.MaxBreakpoints)
	}

	if cfg.DefaultTTL != providers.TTLSession && !caps.SupportsTTL {
		fail("default_ttl %q requires TTL control, which %s does not offer", cfg.DefaultTTL, provider)
	} else if !caps.ValidTTL(cfg.DefaultTTL) {
		fail("default_ttl %q is not offered by %s/%s", cfg.DefaultTTL, provider, model)
	}

	budget := caps.EffectiveBreakpoints()
	if cfg.MaxBreakpoints > 0 && cfg.MaxBreakpoints < budget {
		budget = cfg.MaxBreakpoints
	}
	if len(cfg.Segments) > budget {
		fail("%d segments declared but only %d cache breakpoints are available", len(cfg.Segments), budget)
	}

	seen := make(map[string]bool, len(cfg.Segments))
	for _, seg := range cfg.Segments {
		if seg.Key == "" {
			fail("segment with empty key")
			continue
		}
		if seen[seg.Key] {
			fail("duplicate segment key %q", seg.Key)
			continue
		}
		seen[seg.Key] = true

		if seg.TTL != "" {
			if !seg.TTL.Valid() {
				fail("segment %q: unknown ttl %q", seg.Key, seg.TTL)
			} else if seg.TTL.LongerThan(cfg.DefaultTTL) {
				fail("segment %q: ttl %q outlives default_ttl %q", seg.Key, seg.TTL, cfg.DefaultTTL)
			} else if !caps.ValidTTL(seg.TTL) {
				fail("segment %q: ttl %q is not offered by %s/%s", seg.Key, seg.TTL, provider, model)
			}
		}

		if seg.Scope != "" {
			if !seg.Scope.Valid() {
				fail("segment %q: unknown scope %q", seg.Key, seg.Scope)
			} else if seg.Scope.MorePermissiveThan(cfg.DefaultScope) {
				if seg.Force {
					warn("segment %q: scope %q widens the session default %q (forced)", seg.Key, seg.Scope, cfg.DefaultScope)
				} else {
					fail("segment %q: scope %q is more permissive than default_scope %q", seg.Key, seg.Scope, cfg.DefaultScope)
				}
			}
		}

		if seg.EstimatedTokens > 0 && seg.EstimatedTokens < caps.MinTokens {
			if seg.Force {
				warn("segment %q: %d tokens is below the %d-token floor; caching forced anyway", seg.Key, seg.EstimatedTokens, caps.MinTokens)
			} else {
				fail("segment %q: %d tokens is below the provider floor of %d", seg.Key, seg.EstimatedTokens, caps.MinTokens)
			}
		}
	}

	return res
}
