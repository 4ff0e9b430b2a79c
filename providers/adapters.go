package providers

// Plan is the provider-agnostic cache layout the engine wants applied to a
// request: ordered cache boundaries plus defaults. It is produced from an
// already-validated configuration, so adapters re-apply only defensive
// numeric clamps, never business validation.
type Plan struct {
	// DefaultTTL applies to boundaries that carry no explicit TTL.
	DefaultTTL TTL
	// Boundaries are cacheable content chunks in prompt order.
	Boundaries []Boundary
	// MaxBreakpoints is the capability-clamped breakpoint budget.
	MaxBreakpoints int
	// CacheTools asks that tool definitions join the cached prefix.
	CacheTools bool
}

// Boundary is one cacheable chunk inside a Plan.
type Boundary struct {
	Key    string
	TTL    TTL
	Tokens int
}

// WireOptions is what a Plan projects to for one provider family. Exactly
// one of the two styles is populated: explicit-cache providers get ordered
// Markers; automatic providers get the AutoCache/CacheTools toggles.
type WireOptions struct {
	Provider Provider `json:"provider"`
	// Markers are explicit cache boundaries in prompt order.
	Markers []CacheMarker `json:"markers,omitempty"`
	// AutoCache enables provider-side automatic prefix caching.
	AutoCache bool `json:"auto_cache,omitempty"`
	// CacheTools opts tool definitions into the cached prefix.
	CacheTools bool `json:"cache_tools,omitempty"`
}

// CacheMarker is an explicit cache boundary: the index of the content block
// it terminates and the TTL the provider should hold it for. An empty TTL
// means the provider default.
type CacheMarker struct {
	Index int `json:"index"`
	TTL   TTL `json:"ttl,omitempty"`
}

// Adapter projects a validated Plan into the wire-level options one
// provider family understands.
type Adapter interface {
	Project(plan Plan) WireOptions
}

// adapters is the closed dispatch table. Adding a provider without an
// adapter entry makes AdapterFor fall back to the disabled adapter, so a
// missed registration degrades to no caching rather than bad directives.
var adapters = map[Provider]Adapter{
	Anthropic: anthropicAdapter{},
	OpenAI:    autoCacheAdapter{provider: OpenAI},
	Gemini:    autoCacheAdapter{provider: Gemini},
	Bedrock:   bedrockAdapter{},
	Other:     disabledAdapter{},
}

// AdapterFor returns the cache-option adapter for p.
func AdapterFor(p Provider) Adapter {
	if a, ok := adapters[p]; ok {
		return a
	}
	return disabledAdapter{}
}

// anthropicAdapter emits ordered cache_control-style markers, at most four,
// with per-marker TTL. Session TTL is emitted as empty so the provider
// default applies.
type anthropicAdapter struct{}

func (anthropicAdapter) Project(plan Plan) WireOptions {
	limit := clampBreakpoints(plan.MaxBreakpoints, 4)
	opts := WireOptions{Provider: Anthropic}
	for i, b := range plan.Boundaries {
		if len(opts.Markers) >= limit {
			break
		}
		ttl := b.TTL
		if ttl == "" {
			ttl = plan.DefaultTTL
		}
		if ttl == TTLSession {
			ttl = ""
		}
		opts.Markers = append(opts.Markers, CacheMarker{Index: i, TTL: ttl})
	}
	return opts
}

// bedrockAdapter emits cache checkpoints like anthropicAdapter but strips
// TTLs: Bedrock checkpoints have no TTL control.
type bedrockAdapter struct{}

func (bedrockAdapter) Project(plan Plan) WireOptions {
	limit := clampBreakpoints(plan.MaxBreakpoints, 4)
	opts := WireOptions{Provider: Bedrock}
	for i := range plan.Boundaries {
		if len(opts.Markers) >= limit {
			break
		}
		opts.Markers = append(opts.Markers, CacheMarker{Index: i})
	}
	return opts
}

// autoCacheAdapter covers providers whose caching is automatic: the only
// wire-level signal is a boolean opt-in (and whether tools join the prefix).
type autoCacheAdapter struct {
	provider Provider
}

func (a autoCacheAdapter) Project(plan Plan) WireOptions {
	return WireOptions{
		Provider:   a.provider,
		AutoCache:  len(plan.Boundaries) > 0,
		CacheTools: plan.CacheTools,
	}
}

// disabledAdapter projects every plan to no cache directives at all.
type disabledAdapter struct{}

func (disabledAdapter) Project(_ Plan) WireOptions {
	return WireOptions{Provider: Other}
}

// clampBreakpoints bounds n to [0, ceiling], treating non-positive n as the
// ceiling so an unset budget still respects the provider hard limit.
func clampBreakpoints(n, ceiling int) int {
	if n <= 0 || n > ceiling {
		return ceiling
	}
	return n
}
