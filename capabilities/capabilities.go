// Package capabilities resolves what prompt-cache features a given
// (provider, model) pair actually supports.
//
// The static tables in this package encode provider-published limits. An
// optional override Source (see catalog.go) can widen or narrow individual
// fields at runtime, but every resolved record passes a provider-specific
// safety clamp afterwards: upstream capability data drifts, and exceeding a
// real provider limit causes silent cache misses rather than loud errors.
package capabilities

import (
	"strings"

	"github.com/parallax-ai/forkcache/providers"
)

// Capabilities describes the prompt-cache features of one (provider, model).
// Invariant: when Supported is false every other field is zero, so callers
// only ever need to check the one flag.
type Capabilities struct {
	Supported           bool            `json:"supported"`
	MinTokens           int             `json:"min_tokens"`
	MaxBreakpoints      int             `json:"max_breakpoints"`
	SupportsTTL         bool            `json:"supports_ttl"`
	TTLValues           []providers.TTL `json:"ttl_values,omitempty"`
	SupportsToolCaching bool            `json:"supports_tool_caching"`
	Automatic           bool            `json:"automatic"`
}

// family maps a model-name prefix to its capability record. Families are
// matched in order, so more specific prefixes must come first.
type family struct {
	prefix string
	caps   Capabilities
}

var anthropicFamilies = []family{
	// Haiku models have a higher caching floor than the rest of the line.
	{prefix: "claude-3-5-haiku", caps: Capabilities{
		Supported: true, MinTokens: 2048, MaxBreakpoints: 4,
		SupportsTTL: true, TTLValues: []providers.TTL{providers.TTL5Min, providers.TTL1Hour},
	}},
	{prefix: "claude-3-haiku", caps: Capabilities{
		Supported: true, MinTokens: 2048, MaxBreakpoints: 4,
		SupportsTTL: true, TTLValues: []providers.TTL{providers.TTL5Min, providers.TTL1Hour},
	}},
	{prefix: "claude-", caps: Capabilities{
		Supported: true, MinTokens: 1024, MaxBreakpoints: 4,
		SupportsTTL: true, TTLValues: []providers.TTL{providers.TTL5Min, providers.TTL1Hour},
	}},
}

// anthropicDefault covers unknown Anthropic models: the haiku floor, the
// shared breakpoint limit. Conservative, never the most permissive.
var anthropicDefault = Capabilities{
	Supported: true, MinTokens: 2048, MaxBreakpoints: 4,
	SupportsTTL: true, TTLValues: []providers.TTL{providers.TTL5Min},
}

var openaiFamilies = []family{
	{prefix: "gpt-4o", caps: openaiAuto},
	{prefix: "gpt-4.1", caps: openaiAuto},
	{prefix: "gpt-4-turbo", caps: openaiAuto},
	{prefix: "o1", caps: openaiAuto},
	{prefix: "o3", caps: openaiAuto},
	// Pre-4o chat models predate automatic prefix caching.
	{prefix: "gpt-3.5", caps: Capabilities{}},
	{prefix: "gpt-4", caps: Capabilities{}},
}

// openaiAuto is OpenAI automatic prefix caching: a 1024-token floor, no
// explicit breakpoints, no TTL control, tools cached as part of the prefix.
var openaiAuto = Capabilities{
	Supported: true, MinTokens: 1024,
	SupportsToolCaching: true, Automatic: true,
}

var openaiDefault = openaiAuto

var geminiFamilies = []family{
	// 2.x models cache implicitly with a low floor.
	{prefix: "gemini-2", caps: Capabilities{
		Supported: true, MinTokens: 1024, Automatic: true,
	}},
	// 1.5 models use explicit CachedContent resources: one per request,
	// caller-controlled TTL, steep minimum size.
	{prefix: "gemini-1.5", caps: Capabilities{
		Supported: true, MinTokens: 4096, MaxBreakpoints: 1,
		SupportsTTL: true, TTLValues: []providers.TTL{providers.TTL5Min, providers.TTL1Hour},
	}},
}

var geminiDefault = Capabilities{
	Supported: true, MinTokens: 4096, Automatic: true,
}

var bedrockFamilies = []family{
	{prefix: "anthropic.claude-3-5-haiku", caps: Capabilities{
		Supported: true, MinTokens: 2048, MaxBreakpoints: 4,
	}},
	{prefix: "anthropic.claude-", caps: Capabilities{
		Supported: true, MinTokens: 1024, MaxBreakpoints: 4,
	}},
	{prefix: "amazon.nova", caps: Capabilities{
		Supported: true, MinTokens: 1024, MaxBreakpoints: 4,
	}},
}

// Unknown Bedrock models default to unsupported: most of the catalog has no
// prompt caching at all.
var bedrockDefault = Capabilities{}

// Lookup returns the static capability record for (provider, model). Unknown
// models under a known provider fall back to that provider's conservative
// default; unknown providers are always fully disabled.
func Lookup(provider providers.Provider, model string) Capabilities {
	var families []family
	var fallback Capabilities

	switch provider {
	case providers.Anthropic:
		families, fallback = anthropicFamilies, anthropicDefault
	case providers.OpenAI:
		families, fallback = openaiFamilies, openaiDefault
	case providers.Gemini:
		families, fallback = geminiFamilies, geminiDefault
	case providers.Bedrock:
		families, fallback = bedrockFamilies, bedrockDefault
	default:
		return Capabilities{}
	}

	for _, f := range families {
		if strings.HasPrefix(model, f.prefix) {
			return clamp(provider, f.caps)
		}
	}
	return clamp(provider, fallback)
}

// clamp forces provider hard limits onto a capability record, then
// normalizes. Override data may widen fields beyond what the provider can
// actually honor; clamping here keeps a drifted catalog from producing
// directives the provider silently ignores.
func clamp(provider providers.Provider, caps Capabilities) Capabilities {
	switch provider {
	case providers.Anthropic:
		caps.Automatic = false
		caps.SupportsToolCaching = false
		if caps.MaxBreakpoints > 4 {
			caps.MaxBreakpoints = 4
		}
	case providers.Bedrock:
		caps.Automatic = false
		caps.SupportsToolCaching = false
		caps.SupportsTTL = false
		caps.TTLValues = nil
		if caps.MaxBreakpoints > 4 {
			caps.MaxBreakpoints = 4
		}
	case providers.OpenAI:
		caps.SupportsTTL = false
		caps.TTLValues = nil
	case providers.Gemini:
		// No extra limits beyond normalization.
	default:
		caps = Capabilities{}
	}
	return caps.normalize()
}

// normalize enforces the Supported invariant: an unsupported record carries
// no other information.
func (c Capabilities) normalize() Capabilities {
	if !c.Supported {
		return Capabilities{}
	}
	if c.MinTokens < 0 {
		c.MinTokens = 0
	}
	if c.MaxBreakpoints < 0 {
		c.MaxBreakpoints = 0
	}
	if !c.SupportsTTL {
		c.TTLValues = nil
	}
	return c
}

// ----------------------------------------------------------------- Helpers --

// Feature names a single optional capability.
type Feature string

// Feature constants.
const (
	FeatureTTL         Feature = "ttl"
	FeatureToolCaching Feature = "tool-caching"
	FeatureAutomatic   Feature = "automatic"
)

// Has reports whether the capability record includes the given feature.
func (c Capabilities) Has(f Feature) bool {
	if !c.Supported {
		return false
	}
	switch f {
	case FeatureTTL:
		return c.SupportsTTL
	case FeatureToolCaching:
		return c.SupportsToolCaching
	case FeatureAutomatic:
		return c.Automatic
	}
	return false
}

// planningCeiling bounds segment planning when a provider advertises no
// explicit breakpoint limit (automatic caches are unbounded on the wire but
// planning against "unlimited" is useless).
const planningCeiling = 4

// EffectiveBreakpoints maps the record to a finite planning limit: the
// provider limit when one exists, the planning ceiling for unbounded
// automatic caches, zero when caching is unsupported.
func (c Capabilities) EffectiveBreakpoints() int {
	if !c.Supported {
		return 0
	}
	if c.MaxBreakpoints > 0 {
		return c.MaxBreakpoints
	}
	return planningCeiling
}

// ValidTTL reports whether ttl can be requested against this record.
// TTLSession is always acceptable: it asks for nothing beyond the provider
// default lifetime.
func (c Capabilities) ValidTTL(ttl providers.TTL) bool {
	if ttl == providers.TTLSession {
		return true
	}
	if !c.Supported || !c.SupportsTTL {
		return false
	}
	for _, v := range c.TTLValues {
		if v == ttl {
			return true
		}
	}
	return false
}

// LongestTTL returns the longest explicitly supported TTL, or TTLSession
// when the record supports none.
func (c Capabilities) LongestTTL() providers.TTL {
	longest := providers.TTLSession
	if !c.SupportsTTL {
		return longest
	}
	best := providers.TTL("")
	for _, v := range c.TTLValues {
		if best == "" || v.LongerThan(best) {
			best = v
		}
	}
	if best == "" {
		return longest
	}
	return best
}

// Strategy classifies how a caller should approach caching for a record.
type Strategy string

// Strategy constants.
const (
	StrategyExplicitSegments Strategy = "explicit-segments"
	StrategyAutomatic        Strategy = "automatic-optimization"
	StrategyDisabled         Strategy = "disabled"
)

// RecommendedStrategy classifies the record: explicit segment planning for
// breakpoint-style providers, automatic optimization when the provider
// caches on its own, disabled otherwise.
func (c Capabilities) RecommendedStrategy() Strategy {
	switch {
	case !c.Supported:
		return StrategyDisabled
	case c.Automatic:
		return StrategyAutomatic
	default:
		return StrategyExplicitSegments
	}
}
