package forkcache

import (
	"strings"
	"testing"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/providers"
	"github.com/parallax-ai/forkcache/segments"
)

func TestShouldWarmup(t *testing.T) {
	sonnet := capabilities.Lookup(providers.Anthropic, "claude-sonnet-4-5")
	openai := capabilities.Lookup(providers.OpenAI, "gpt-4o")
	unsupported := capabilities.Lookup(providers.Other, "mystery")

	qualifying := func() *segments.Manager {
		mgr := segments.NewManager(providers.Anthropic, "claude-sonnet-4-5", sonnet, segments.Config{})
		// 5000 chars estimate to 1250 tokens, above the 1024 floor.
		if _, err := mgr.AddSegment("corpus", strings.Repeat("abcde", 1000), segments.AddOptions{}); err != nil {
			t.Fatalf("add segment: %v", err)
		}
		return mgr
	}
	empty := segments.NewManager(providers.Anthropic, "claude-sonnet-4-5", sonnet, segments.Config{})

	tests := []struct {
		name     string
		caps     capabilities.Capabilities
		mgr      *segments.Manager
		branches int
		want     bool
	}{
		{"qualifying three branches", sonnet, qualifying(), 3, true},
		{"single branch", sonnet, qualifying(), 1, false},
		{"two branches", sonnet, qualifying(), 2, true},
		{"no segments", sonnet, empty, 3, false},
		{"nil manager", sonnet, nil, 3, false},
		{"automatic provider", openai, qualifying(), 3, false},
		{"unsupported provider", unsupported, qualifying(), 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldWarmup(tt.caps, tt.mgr, tt.branches); got != tt.want {
				t.Fatalf("ShouldWarmup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldWarmup_BelowFloor(t *testing.T) {
	caps := capabilities.Lookup(providers.Anthropic, "claude-sonnet-4-5")
	mgr := segments.NewManager(providers.Anthropic, "claude-sonnet-4-5", caps, segments.Config{})
	// 400 chars estimate to 100 tokens, forced below the floor.
	if _, err := mgr.AddSegment("tiny", strings.Repeat("x", 400), segments.AddOptions{Force: true}); err != nil {
		t.Fatalf("add segment: %v", err)
	}
	if ShouldWarmup(caps, mgr, 3) {
		t.Fatal("below-floor aggregate must not trigger warmup")
	}
}

func TestEstimateWarmupCost(t *testing.T) {
	caps := capabilities.Lookup(providers.Anthropic, "claude-sonnet-4-5")
	mgr := segments.NewManager(providers.Anthropic, "claude-sonnet-4-5", caps, segments.Config{})
	if _, err := mgr.AddSegment("corpus", strings.Repeat("abcd", 2000), segments.AddOptions{}); err != nil {
		t.Fatalf("add segment: %v", err)
	}

	// 2000 segment tokens + 100 system tokens + fixed overhead.
	got := EstimateWarmupCost(mgr, strings.Repeat("s", 400))
	want := 2000 + 100 + warmupOverheadTokens
	if got != want {
		t.Fatalf("EstimateWarmupCost() = %d, want %d", got, want)
	}

	if got := EstimateWarmupCost(nil, ""); got != warmupOverheadTokens {
		t.Fatalf("empty estimate = %d, want %d", got, warmupOverheadTokens)
	}
}
