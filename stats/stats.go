// Package stats normalizes provider usage payloads into cache statistics
// and aggregates them across calls.
//
// Parsing is strictly observational: an unrecognized payload yields all-zero
// stats carrying the raw bytes, never an error, so metrics bookkeeping can
// never fail a call that the provider itself accepted.
package stats

import (
	"encoding/json"

	"github.com/parallax-ai/forkcache/providers"
)

// CacheStats is the normalized cache accounting for one call. Immutable once
// produced; combine with Aggregate.
type CacheStats struct {
	Provider providers.Provider `json:"provider"`
	Model    string             `json:"model,omitempty"`
	// InputTokens is the total input processed for the call, including
	// tokens served from cache, so hit rates are comparable across provider
	// reporting styles.
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	// SavedTokens is input that did not have to be reprocessed. Equal to
	// CacheReadTokens under both reporting styles.
	SavedTokens         int     `json:"saved_tokens"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	EstimatedSavingsUSD float64 `json:"estimated_savings_usd"`
	// TTL and BreakpointsUsed are optional; only explicit-cache providers
	// populate them.
	TTL             providers.TTL `json:"ttl,omitempty"`
	BreakpointsUsed int           `json:"breakpoints_used,omitempty"`
	// Raw preserves the original payload for payloads we could not map.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// anthropicUsage is the explicit-cache reporting shape: separate write and
// read counts beside the uncached input count.
type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// bedrockUsage is the Converse API variant of the same accounting.
type bedrockUsage struct {
	InputTokens           int `json:"inputTokens"`
	OutputTokens          int `json:"outputTokens"`
	CacheReadInputTokens  int `json:"cacheReadInputTokens"`
	CacheWriteInputTokens int `json:"cacheWriteInputTokens"`
}

// openaiUsage is the automatic-cache shape: one nested cached count inside
// the prompt total. There is no write-cost visibility.
type openaiUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// geminiUsage is Gemini's usageMetadata block.
type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

// Parse normalizes a raw provider usage payload. Unknown providers and
// unrecognized payloads yield zero stats with Raw preserved; Parse never
// fails.
func Parse(raw json.RawMessage, provider providers.Provider, model string) CacheStats {
	s := CacheStats{Provider: provider, Model: model, Raw: raw}
	if len(raw) == 0 {
		return s
	}

	switch provider {
	case providers.Anthropic:
		var u anthropicUsage
		if err := json.Unmarshal(raw, &u); err != nil {
			return s
		}
		s.InputTokens = u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
		s.OutputTokens = u.OutputTokens
		s.CacheReadTokens = u.CacheReadInputTokens
		s.CacheWriteTokens = u.CacheCreationInputTokens

	case providers.Bedrock:
		var u bedrockUsage
		if err := json.Unmarshal(raw, &u); err != nil {
			return s
		}
		s.InputTokens = u.InputTokens + u.CacheReadInputTokens + u.CacheWriteInputTokens
		s.OutputTokens = u.OutputTokens
		s.CacheReadTokens = u.CacheReadInputTokens
		s.CacheWriteTokens = u.CacheWriteInputTokens

	case providers.OpenAI:
		var u openaiUsage
		if err := json.Unmarshal(raw, &u); err != nil {
			return s
		}
		s.InputTokens = u.PromptTokens
		s.OutputTokens = u.CompletionTokens
		s.CacheReadTokens = u.PromptTokensDetails.CachedTokens

	case providers.Gemini:
		var u geminiUsage
		if err := json.Unmarshal(raw, &u); err != nil {
			return s
		}
		s.InputTokens = u.PromptTokenCount
		s.OutputTokens = u.CandidatesTokenCount
		s.CacheReadTokens = u.CachedContentTokenCount

	default:
		return s
	}

	s.SavedTokens = s.CacheReadTokens
	if s.InputTokens > 0 {
		s.CacheHitRate = float64(s.CacheReadTokens) / float64(s.InputTokens)
	}
	price := providers.PricingFor(provider, model)
	s.EstimatedSavingsUSD = float64(s.SavedTokens) / 1_000_000 * price.InputPer1M
	return s
}

// Aggregate sums a set of stats into one record. All numeric fields add;
// the hit rate is recomputed as totalRead/totalInput rather than averaging
// per-call rates, which would bias toward short calls. Provider and model
// identity come from the first entry. Aggregation is associative and
// commutative, so partial aggregates can themselves be aggregated.
func Aggregate(all []CacheStats) CacheStats {
	var out CacheStats
	if len(all) == 0 {
		return out
	}
	out.Provider = all[0].Provider
	out.Model = all[0].Model
	for _, s := range all {
		out.InputTokens += s.InputTokens
		out.OutputTokens += s.OutputTokens
		out.CacheWriteTokens += s.CacheWriteTokens
		out.CacheReadTokens += s.CacheReadTokens
		out.SavedTokens += s.SavedTokens
		out.EstimatedSavingsUSD += s.EstimatedSavingsUSD
		out.BreakpointsUsed += s.BreakpointsUsed
	}
	if out.InputTokens > 0 {
		out.CacheHitRate = float64(out.CacheReadTokens) / float64(out.InputTokens)
	}
	return out
}
