package stats

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/parallax-ai/forkcache/providers"
)

// TestParse_Anthropic tests the explicit-cache reporting shape.
func TestParse_Anthropic(t *testing.T) {
	raw := json.RawMessage(`{
		"input_tokens": 100,
		"output_tokens": 50,
		"cache_read_input_tokens": 800,
		"cache_creation_input_tokens": 100
	}`)
	s := Parse(raw, providers.Anthropic, "claude-3-5-sonnet-20241022")

	if s.InputTokens != 1000 {
		t.Errorf("InputTokens = %d, want 1000 (uncached + read + write)", s.InputTokens)
	}
	if s.CacheReadTokens != 800 || s.CacheWriteTokens != 100 {
		t.Errorf("read/write = %d/%d, want 800/100", s.CacheReadTokens, s.CacheWriteTokens)
	}
	if s.SavedTokens != 800 {
		t.Errorf("SavedTokens = %d, want 800", s.SavedTokens)
	}
	if math.Abs(s.CacheHitRate-0.8) > 1e-9 {
		t.Errorf("CacheHitRate = %v, want 0.8", s.CacheHitRate)
	}
	// 800 saved tokens at $3/1M input.
	if math.Abs(s.EstimatedSavingsUSD-0.0024) > 1e-9 {
		t.Errorf("EstimatedSavingsUSD = %v, want 0.0024", s.EstimatedSavingsUSD)
	}
}

// TestParse_OpenAI tests the automatic-cache shape: nested cached count,
// no write visibility.
func TestParse_OpenAI(t *testing.T) {
	raw := json.RawMessage(`{
		"prompt_tokens": 2000,
		"completion_tokens": 100,
		"prompt_tokens_details": {"cached_tokens": 1500}
	}`)
	s := Parse(raw, providers.OpenAI, "gpt-4o")

	if s.InputTokens != 2000 {
		t.Errorf("InputTokens = %d, want 2000", s.InputTokens)
	}
	if s.CacheWriteTokens != 0 {
		t.Errorf("CacheWriteTokens = %d, want 0 (no write visibility)", s.CacheWriteTokens)
	}
	if s.SavedTokens != 1500 {
		t.Errorf("SavedTokens = %d, want 1500", s.SavedTokens)
	}
	if math.Abs(s.CacheHitRate-0.75) > 1e-9 {
		t.Errorf("CacheHitRate = %v, want 0.75", s.CacheHitRate)
	}
}

// TestParse_Bedrock tests the Converse API key spelling.
func TestParse_Bedrock(t *testing.T) {
	raw := json.RawMessage(`{
		"inputTokens": 50,
		"outputTokens": 20,
		"cacheReadInputTokens": 900,
		"cacheWriteInputTokens": 50
	}`)
	s := Parse(raw, providers.Bedrock, "anthropic.claude-3-5-sonnet-20241022-v2:0")
	if s.InputTokens != 1000 || s.CacheReadTokens != 900 || s.CacheWriteTokens != 50 {
		t.Errorf("parsed = %+v, want input 1000, read 900, write 50", s)
	}
}

// TestParse_Gemini tests the usageMetadata shape.
func TestParse_Gemini(t *testing.T) {
	raw := json.RawMessage(`{
		"promptTokenCount": 4000,
		"candidatesTokenCount": 300,
		"cachedContentTokenCount": 3500
	}`)
	s := Parse(raw, providers.Gemini, "gemini-1.5-pro")
	if s.SavedTokens != 3500 || s.OutputTokens != 300 {
		t.Errorf("parsed = %+v, want saved 3500, output 300", s)
	}
}

// TestParse_NeverFails tests that unknown providers and garbage payloads
// produce zero stats carrying the raw payload.
func TestParse_NeverFails(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		provider providers.Provider
	}{
		{"unknown provider", `{"input_tokens": 100}`, providers.Other},
		{"garbage payload", `not json at all`, providers.Anthropic},
		{"empty payload", ``, providers.OpenAI},
		{"wrong types", `{"prompt_tokens": "many"}`, providers.OpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse(json.RawMessage(tt.raw), tt.provider, "m")
			if s.InputTokens != 0 || s.SavedTokens != 0 || s.CacheHitRate != 0 {
				t.Errorf("non-zero stats from unparseable payload: %+v", s)
			}
			if tt.raw != "" && string(s.Raw) != tt.raw {
				t.Error("raw payload not preserved")
			}
		})
	}
}

func sampleStats(input, read int) CacheStats {
	s := CacheStats{
		Provider:        providers.Anthropic,
		Model:           "claude-3-5-sonnet-20241022",
		InputTokens:     input,
		CacheReadTokens: read,
		SavedTokens:     read,
	}
	if input > 0 {
		s.CacheHitRate = float64(read) / float64(input)
	}
	return s
}

// TestAggregate_HitRate tests that aggregation recomputes the hit rate from
// totals instead of averaging per-call rates.
func TestAggregate_HitRate(t *testing.T) {
	// A short call with a perfect hit rate must not dominate a long miss.
	short := sampleStats(10, 10)  // rate 1.0
	long := sampleStats(1990, 0) // rate 0.0

	agg := Aggregate([]CacheStats{short, long})
	if agg.InputTokens != 2000 {
		t.Fatalf("InputTokens = %d, want 2000", agg.InputTokens)
	}
	if math.Abs(agg.CacheHitRate-0.005) > 1e-9 {
		t.Errorf("CacheHitRate = %v, want totalRead/totalInput = 0.005", agg.CacheHitRate)
	}
}

// TestAggregate_AssociativeCommutative tests that grouping and order do not
// change the aggregate.
func TestAggregate_AssociativeCommutative(t *testing.T) {
	a := sampleStats(1000, 400)
	b := sampleStats(500, 100)
	c := sampleStats(2000, 1500)

	direct := Aggregate([]CacheStats{a, b, c})
	partial := Aggregate([]CacheStats{Aggregate([]CacheStats{a, b}), c})
	reordered := Aggregate([]CacheStats{c, a, b})

	for name, got := range map[string]CacheStats{"partial": partial, "reordered": reordered} {
		if got.InputTokens != direct.InputTokens ||
			got.CacheReadTokens != direct.CacheReadTokens ||
			got.SavedTokens != direct.SavedTokens ||
			math.Abs(got.CacheHitRate-direct.CacheHitRate) > 1e-9 {
			t.Errorf("%s aggregate diverged: %+v vs %+v", name, got, direct)
		}
	}
}

// TestAggregate_Empty tests the zero-input case.
func TestAggregate_Empty(t *testing.T) {
	if agg := Aggregate(nil); !reflect.DeepEqual(agg, CacheStats{}) {
		t.Errorf("Aggregate(nil) = %+v, want zero", agg)
	}
}

// TestCollector tests the stateful add/aggregate/individual/clear surface.
func TestCollector(t *testing.T) {
	c := NewCollector()
	c.Add(sampleStats(1000, 400))
	c.Record(json.RawMessage(`{"input_tokens":100,"output_tokens":10,"cache_read_input_tokens":900,"cache_creation_input_tokens":0}`),
		providers.Anthropic, "claude-3-5-sonnet-20241022")

	if c.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", c.Count())
	}
	agg := c.Aggregate()
	if agg.CacheReadTokens != 1300 {
		t.Errorf("aggregate read = %d, want 1300", agg.CacheReadTokens)
	}
	if got := len(c.Individual()); got != 2 {
		t.Errorf("Individual() = %d entries, want 2", got)
	}

	c.Clear()
	if c.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", c.Count())
	}
}

// TestEstimateSavings tests the three recommendation tiers.
func TestEstimateSavings(t *testing.T) {
	const model = "claude-3-5-sonnet-20241022"

	r := EstimateSavings(400, 5, providers.Anthropic, model) // ~100 tokens
	if r.Tier != TierTooShort {
		t.Errorf("Tier = %v, want too-short", r.Tier)
	}

	r = EstimateSavings(20000, 1, providers.Anthropic, model) // ~5000 tokens, one use
	if r.Tier != TierSingleUse {
		t.Errorf("Tier = %v, want not-worth-single-use", r.Tier)
	}

	r = EstimateSavings(20000, 4, providers.Anthropic, model)
	if r.Tier != TierRecommended {
		t.Fatalf("Tier = %v, want recommended", r.Tier)
	}
	if r.EstimatedSavedTokens != 15000 {
		t.Errorf("EstimatedSavedTokens = %d, want 5000×3", r.EstimatedSavedTokens)
	}
	if r.EstimatedSavingsUSD <= 0 {
		t.Error("recommended estimate should carry a positive USD figure")
	}

	r = EstimateSavings(20000, 4, providers.Other, "x")
	if r.Tier != TierTooShort {
		t.Errorf("unsupported provider Tier = %v, want too-short", r.Tier)
	}
}
