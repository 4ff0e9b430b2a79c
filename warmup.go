package forkcache

import (
	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/segments"
)

// warmupOverheadTokens approximates the fixed request framing cost of a
// minimal priming call (role preamble, empty user turn, stop sequences).
const warmupOverheadTokens = 16

// ShouldWarmup decides whether an explicit cache-priming call is worth
// issuing before branch fan-out. All four conditions must hold: the provider
// supports caching, caching is explicit rather than automatic (automatic
// providers prime themselves on the first request), the session has at least
// one qualifying segment whose aggregate estimate meets the provider floor,
// and more than one branch will reuse the primed prefix.
func ShouldWarmup(caps capabilities.Capabilities, mgr *segments.Manager, branchCount int) bool {
	if !caps.Supported || caps.Automatic {
		return false
	}
	if branchCount <= 1 {
		return false
	}
	if mgr == nil {
		return false
	}
	ok, _ := mgr.WorthCaching()
	return ok
}

// EstimateWarmupCost approximates the input tokens a priming call will bill:
// every registered segment, the system text, and fixed request overhead.
// The estimate uses the manager's estimator for segments and the chars/4
// heuristic for the system text; it is an upper bound for planning, not an
// accounting figure.
func EstimateWarmupCost(mgr *segments.Manager, systemText string) int {
	total := warmupOverheadTokens + len(systemText)/4
	if mgr != nil {
		total += mgr.TotalEstimatedTokens()
	}
	return total
}
