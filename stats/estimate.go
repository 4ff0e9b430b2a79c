package stats

import (
	"fmt"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/providers"
)

// Tier is the pre-call caching recommendation.
type Tier string

// Recommendation tiers.
const (
	TierTooShort    Tier = "too-short"
	TierSingleUse   Tier = "not-worth-single-use"
	TierRecommended Tier = "recommended"
)

// Recommendation is the outcome of a pre-call savings estimate.
type Recommendation struct {
	Tier Tier `json:"tier"`
	// EstimatedTokens is the chars/4 estimate of the shared content.
	EstimatedTokens int `json:"estimated_tokens"`
	// EstimatedSavedTokens counts input spared across the expected reuses:
	// the content is paid for once, then read from cache reuses-1 times.
	EstimatedSavedTokens int     `json:"estimated_saved_tokens"`
	EstimatedSavingsUSD  float64 `json:"estimated_savings_usd"`
	Reason               string  `json:"reason"`
}

// EstimateSavings projects the value of caching contentChars of shared
// content reused expectedReuses times against (provider, model). It is a
// guardrail for callers deciding whether to bother with cache priming, not
// a billing prediction.
func EstimateSavings(contentChars, expectedReuses int, provider providers.Provider, model string) Recommendation {
	tokens := contentChars / 4
	rec := Recommendation{EstimatedTokens: tokens}

	caps := capabilities.Lookup(provider, model)
	if !caps.Supported {
		rec.Tier = TierTooShort
		rec.Reason = fmt.Sprintf("%s/%s does not support prompt caching", provider, model)
		return rec
	}
	if tokens < caps.MinTokens {
		rec.Tier = TierTooShort
		rec.Reason = fmt.Sprintf("estimated %d tokens is below the %d-token floor", tokens, caps.MinTokens)
		return rec
	}
	if expectedReuses <= 1 {
		rec.Tier = TierSingleUse
		rec.Reason = "content read at most once; a cache write would cost more than it saves"
		return rec
	}

	rec.Tier = TierRecommended
	rec.EstimatedSavedTokens = tokens * (expectedReuses - 1)
	price := providers.PricingFor(provider, model)
	rec.EstimatedSavingsUSD = float64(rec.EstimatedSavedTokens) / 1_000_000 * price.InputPer1M
	rec.Reason = fmt.Sprintf("~%d tokens reused %d times", tokens, expectedReuses)
	return rec
}
