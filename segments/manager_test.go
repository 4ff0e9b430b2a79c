package segments

import (
	"errors"
	"strings"
	"testing"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/providers"
)

const flagship = "claude-3-5-sonnet-20241022"

func anthropicManager(t *testing.T) *Manager {
	t.Helper()
	caps := capabilities.Lookup(providers.Anthropic, flagship)
	return NewManager(providers.Anthropic, flagship, caps, Config{
		DefaultScope: providers.ScopeDeveloperContent,
		DefaultTTL:   providers.TTL1Hour,
	})
}

// bigContent returns content estimated at roughly n tokens by the chars/4
// heuristic.
func bigContent(n int) string {
	return strings.Repeat("abcd", n)
}

// TestAddSegment_Basic tests a clean registration.
func TestAddSegment_Basic(t *testing.T) {
	m := anthropicManager(t)

	warnings, err := m.AddSegment("docs", bigContent(2000), AddOptions{})
	if err != nil {
		t.Fatalf("AddSegment() error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", m.Count())
	}
	seg := m.Segments()[0]
	if seg.EstimatedTokens != 2000 {
		t.Errorf("EstimatedTokens = %d, want 2000", seg.EstimatedTokens)
	}
	if seg.TTL != providers.TTL1Hour {
		t.Errorf("TTL = %v, want manager default 1h", seg.TTL)
	}
	if seg.Scope != providers.ScopeDeveloperContent {
		t.Errorf("Scope = %v, want manager default", seg.Scope)
	}
}

// TestAddSegment_DuplicateKey tests rejection of reused keys.
func TestAddSegment_DuplicateKey(t *testing.T) {
	m := anthropicManager(t)
	if _, err := m.AddSegment("docs", bigContent(2000), AddOptions{}); err != nil {
		t.Fatalf("first AddSegment() error: %v", err)
	}
	_, err := m.AddSegment("docs", bigContent(2000), AddOptions{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeDuplicateKey {
		t.Fatalf("err = %v, want duplicate-key ValidationError", err)
	}
}

// TestAddSegment_Unsupported tests rejection when the target cannot cache.
func TestAddSegment_Unsupported(t *testing.T) {
	caps := capabilities.Lookup(providers.Other, "whatever")
	m := NewManager(providers.Other, "whatever", caps, Config{})
	_, err := m.AddSegment("docs", bigContent(5000), AddOptions{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeUnsupported {
		t.Fatalf("err = %v, want caching-unsupported ValidationError", err)
	}
}

// TestAddSegment_Budget tests the min(config, capability) segment budget and
// the force escape hatch.
func TestAddSegment_Budget(t *testing.T) {
	caps := capabilities.Lookup(providers.Anthropic, flagship)
	m := NewManager(providers.Anthropic, flagship, caps, Config{
		DefaultScope: providers.ScopeDeveloperContent,
		MaxSegments:  2, // tighter than the capability limit of 4
	})

	for _, key := range []string{"a", "b"} {
		if _, err := m.AddSegment(key, bigContent(2000), AddOptions{}); err != nil {
			t.Fatalf("AddSegment(%q) error: %v", key, err)
		}
	}

	_, err := m.AddSegment("c", bigContent(2000), AddOptions{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeTooMany {
		t.Fatalf("err = %v, want segment-budget-exceeded", err)
	}

	warnings, err := m.AddSegment("c", bigContent(2000), AddOptions{Force: true})
	if err != nil {
		t.Fatalf("forced AddSegment() error: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("forced over-budget add should warn")
	}
}

// TestAddSegment_TTL tests blocking rejection of unsupported TTL values and
// the non-blocking degradation when the provider has no TTL control at all.
func TestAddSegment_TTL(t *testing.T) {
	m := anthropicManager(t)
	_, err := m.AddSegment("docs", bigContent(2000), AddOptions{TTL: providers.TTL("2h")})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeInvalidTTL {
		t.Fatalf("err = %v, want invalid-ttl", err)
	}

	// Bedrock supports caching but has no TTL control: requesting one is a
	// warning plus degradation to session, never an error.
	bcaps := capabilities.Lookup(providers.Bedrock, "anthropic.claude-3-5-sonnet-20241022-v2:0")
	bm := NewManager(providers.Bedrock, "anthropic.claude-3-5-sonnet-20241022-v2:0", bcaps, Config{
		DefaultScope: providers.ScopeDeveloperContent,
	})
	warnings, err := bm.AddSegment("docs", bigContent(2000), AddOptions{TTL: providers.TTL1Hour})
	if err != nil {
		t.Fatalf("AddSegment() error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "no ttl control") {
		t.Errorf("warnings = %v, want ttl degradation warning", warnings)
	}
	if got := bm.Segments()[0].TTL; got != providers.TTLSession {
		t.Errorf("TTL = %v, want degraded session", got)
	}
}

// TestAddSegment_Scope tests the scope permissiveness invariant: blocking
// by default, auditable via force.
func TestAddSegment_Scope(t *testing.T) {
	m := anthropicManager(t) // default scope developer-content

	_, err := m.AddSegment("chat", bigContent(2000), AddOptions{Scope: providers.ScopeAllowUserContent})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeScopeViolation {
		t.Fatalf("err = %v, want scope-violation", err)
	}

	warnings, err := m.AddSegment("chat", bigContent(2000), AddOptions{
		Scope: providers.ScopeAllowUserContent, Force: true,
	})
	if err != nil {
		t.Fatalf("forced AddSegment() error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "scope") {
		t.Errorf("warnings = %v, want forced-scope warning", warnings)
	}

	// Narrower scopes are always fine.
	if _, err := m.AddSegment("sys", bigContent(2000), AddOptions{Scope: providers.ScopeSystemOnly}); err != nil {
		t.Errorf("narrower scope rejected: %v", err)
	}
}

// TestAddSegment_TokenFloor tests the provider floor: blocking without
// force, warning with it.
func TestAddSegment_TokenFloor(t *testing.T) {
	m := anthropicManager(t)

	_, err := m.AddSegment("tiny", bigContent(100), AddOptions{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Code != CodeBelowFloor {
		t.Fatalf("err = %v, want below-token-floor", err)
	}

	warnings, err := m.AddSegment("tiny", bigContent(100), AddOptions{Force: true})
	if err != nil {
		t.Fatalf("forced AddSegment() error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "floor") {
		t.Errorf("warnings = %v, want below-floor warning", warnings)
	}
	if !m.Segments()[0].Forced {
		t.Error("forced segment should record Forced = true")
	}
}

// TestAddSystemSegment tests pinning of scope and the longest supported TTL.
func TestAddSystemSegment(t *testing.T) {
	m := anthropicManager(t)
	// Even an over-permissive request is pinned down to system-only.
	if _, err := m.AddSystemSegment(bigContent(3000), AddOptions{Scope: providers.ScopeAllowUserContent}); err != nil {
		t.Fatalf("AddSystemSegment() error: %v", err)
	}
	seg := m.Segments()[0]
	if seg.Key != SystemSegmentKey {
		t.Errorf("Key = %q, want %q", seg.Key, SystemSegmentKey)
	}
	if seg.Scope != providers.ScopeSystemOnly {
		t.Errorf("Scope = %v, want system-only", seg.Scope)
	}
	if seg.TTL != providers.TTL1Hour {
		t.Errorf("TTL = %v, want longest supported (1h)", seg.TTL)
	}
}

// TestQueries tests the aggregate and filter surface.
func TestQueries(t *testing.T) {
	m := anthropicManager(t)
	mustAdd := func(key string, tokens int, opts AddOptions) {
		t.Helper()
		if _, err := m.AddSegment(key, bigContent(tokens), opts); err != nil {
			t.Fatalf("AddSegment(%q): %v", key, err)
		}
	}
	mustAdd("a", 2000, AddOptions{Scope: providers.ScopeSystemOnly, TTL: providers.TTL5Min})
	mustAdd("b", 3000, AddOptions{})
	mustAdd("c", 1500, AddOptions{TTL: providers.TTL5Min})

	if got := m.TotalEstimatedTokens(); got != 6500 {
		t.Errorf("TotalEstimatedTokens() = %d, want 6500", got)
	}
	if got := len(m.ByScope(providers.ScopeSystemOnly)); got != 1 {
		t.Errorf("ByScope(system-only) = %d segments, want 1", got)
	}
	if got := len(m.ByTTL(providers.TTL5Min)); got != 2 {
		t.Errorf("ByTTL(5m) = %d segments, want 2", got)
	}
	if ok, reason := m.WorthCaching(); !ok {
		t.Errorf("WorthCaching() = false (%s), want true", reason)
	}
}

// TestWorthCaching_Negative tests the negative verdicts with reasons.
func TestWorthCaching_Negative(t *testing.T) {
	m := anthropicManager(t)
	if ok, reason := m.WorthCaching(); ok || reason == "" {
		t.Error("empty manager should not be worth caching, with a reason")
	}

	if _, err := m.AddSegment("tiny", bigContent(200), AddOptions{Force: true}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if ok, reason := m.WorthCaching(); ok || !strings.Contains(reason, "floor") {
		t.Errorf("below-floor aggregate should not be worth caching, got ok=%v reason=%q", ok, reason)
	}
}

// TestRevalidateFor tests replaying a session against a different target.
func TestRevalidateFor(t *testing.T) {
	m := anthropicManager(t)
	// 1500 tokens clears the sonnet floor (1024) but not haiku's (2048).
	if _, err := m.AddSegment("docs", bigContent(1500), AddOptions{TTL: providers.TTL1Hour}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	haiku := capabilities.Lookup(providers.Anthropic, "claude-3-5-haiku-20241022")
	errs := m.RevalidateFor(providers.Anthropic, "claude-3-5-haiku-20241022", haiku)
	if len(errs) != 1 {
		t.Fatalf("RevalidateFor(haiku) = %d errors, want 1: %v", len(errs), errs)
	}

	other := capabilities.Lookup(providers.Other, "x")
	errs = m.RevalidateFor(providers.Other, "x", other)
	if len(errs) != 1 {
		t.Fatalf("RevalidateFor(other) = %d errors, want 1", len(errs))
	}
	var verr *ValidationError
	if !errors.As(errs[0], &verr) || verr.Code != CodeUnsupported {
		t.Errorf("err = %v, want caching-unsupported", errs[0])
	}
}

// TestPlan tests projection into the provider-agnostic cache plan.
func TestPlan(t *testing.T) {
	m := anthropicManager(t)
	if _, err := m.AddSegment("a", bigContent(2000), AddOptions{TTL: providers.TTL5Min}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if _, err := m.AddSegment("b", bigContent(3000), AddOptions{}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	plan := m.Plan()
	if len(plan.Boundaries) != 2 {
		t.Fatalf("boundaries = %d, want 2", len(plan.Boundaries))
	}
	if plan.Boundaries[0].Key != "a" || plan.Boundaries[1].Key != "b" {
		t.Error("plan boundaries out of registration order")
	}
	if plan.Boundaries[0].TTL != providers.TTL5Min {
		t.Errorf("boundary 0 TTL = %v, want 5m", plan.Boundaries[0].TTL)
	}
	if plan.MaxBreakpoints != 4 {
		t.Errorf("MaxBreakpoints = %d, want 4", plan.MaxBreakpoints)
	}
}

// TestHeuristicEstimator tests the chars/4 heuristic.
func TestHeuristicEstimator(t *testing.T) {
	e := HeuristicEstimator{}
	if got := e.EstimateTokens(strings.Repeat("x", 5000)); got != 1250 {
		t.Errorf("EstimateTokens(5000 chars) = %d, want 1250", got)
	}
	if got := e.EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}
