package providers

import "testing"

func planWithBoundaries(n int) Plan {
	p := Plan{DefaultTTL: TTL1Hour, MaxBreakpoints: 4}
	for i := 0; i < n; i++ {
		p.Boundaries = append(p.Boundaries, Boundary{Key: string(rune('a' + i)), Tokens: 2000})
	}
	return p
}

// TestAnthropicAdapter_BoundsMarkers tests that marker count never exceeds
// the provider hard limit of four, regardless of the configured budget.
func TestAnthropicAdapter_BoundsMarkers(t *testing.T) {
	tests := []struct {
		name        string
		boundaries  int
		budget      int
		wantMarkers int
	}{
		{"under budget", 2, 4, 2},
		{"at budget", 4, 4, 4},
		{"boundaries exceed budget", 6, 4, 4},
		{"budget exceeds hard limit", 6, 10, 4},
		{"unset budget uses hard limit", 6, 0, 4},
		{"tight budget", 3, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planWithBoundaries(tt.boundaries)
			plan.MaxBreakpoints = tt.budget
			opts := AdapterFor(Anthropic).Project(plan)
			if len(opts.Markers) != tt.wantMarkers {
				t.Errorf("markers = %d, want %d", len(opts.Markers), tt.wantMarkers)
			}
			if opts.AutoCache {
				t.Error("explicit provider should not set AutoCache")
			}
		})
	}
}

// TestAnthropicAdapter_TTL tests per-marker TTL projection: explicit TTLs
// pass through, session elides to the provider default, missing TTLs take
// the plan default.
func TestAnthropicAdapter_TTL(t *testing.T) {
	plan := Plan{
		DefaultTTL:     TTL1Hour,
		MaxBreakpoints: 4,
		Boundaries: []Boundary{
			{Key: "a", TTL: TTL5Min},
			{Key: "b"},
			{Key: "c", TTL: TTLSession},
		},
	}
	opts := AdapterFor(Anthropic).Project(plan)
	if len(opts.Markers) != 3 {
		t.Fatalf("markers = %d, want 3", len(opts.Markers))
	}
	if opts.Markers[0].TTL != TTL5Min {
		t.Errorf("marker 0 TTL = %v, want 5m", opts.Markers[0].TTL)
	}
	if opts.Markers[1].TTL != TTL1Hour {
		t.Errorf("marker 1 TTL = %v, want plan default 1h", opts.Markers[1].TTL)
	}
	if opts.Markers[2].TTL != "" {
		t.Errorf("marker 2 TTL = %v, want empty (session elided)", opts.Markers[2].TTL)
	}
}

// TestBedrockAdapter_StripsTTL tests that Bedrock markers never carry a TTL.
func TestBedrockAdapter_StripsTTL(t *testing.T) {
	plan := planWithBoundaries(3)
	plan.Boundaries[0].TTL = TTL1Hour
	opts := AdapterFor(Bedrock).Project(plan)
	if len(opts.Markers) != 3 {
		t.Fatalf("markers = %d, want 3", len(opts.Markers))
	}
	for i, m := range opts.Markers {
		if m.TTL != "" {
			t.Errorf("marker %d TTL = %v, want empty", i, m.TTL)
		}
	}
}

// TestAutoCacheAdapter tests the boolean projection for automatic providers.
func TestAutoCacheAdapter(t *testing.T) {
	plan := planWithBoundaries(2)
	plan.CacheTools = true

	for _, p := range []Provider{OpenAI, Gemini} {
		opts := AdapterFor(p).Project(plan)
		if !opts.AutoCache {
			t.Errorf("%v: AutoCache = false, want true", p)
		}
		if !opts.CacheTools {
			t.Errorf("%v: CacheTools = false, want true", p)
		}
		if len(opts.Markers) != 0 {
			t.Errorf("%v: automatic provider emitted %d markers", p, len(opts.Markers))
		}
	}

	empty := AdapterFor(OpenAI).Project(Plan{})
	if empty.AutoCache {
		t.Error("AutoCache = true with no boundaries, want false")
	}
}

// TestDisabledAdapter tests that unknown providers project to nothing.
func TestDisabledAdapter(t *testing.T) {
	opts := AdapterFor(Other).Project(planWithBoundaries(3))
	if opts.AutoCache || opts.CacheTools || len(opts.Markers) != 0 {
		t.Errorf("disabled adapter emitted directives: %+v", opts)
	}
	// An unmapped provider value must also fall back to disabled.
	opts = AdapterFor(Provider("mystery")).Project(planWithBoundaries(3))
	if opts.AutoCache || len(opts.Markers) != 0 {
		t.Errorf("unmapped provider emitted directives: %+v", opts)
	}
}
