// Package metrics registers the Prometheus metrics used by the fork engine.
// Import this package (via blank import) from the process entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fork-level counters and histograms.
var (
	// ForksTotal counts completed fork invocations labelled by provider,
	// strategy, and outcome ("success", "error", "rejected").
	ForksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkcache_forks_total",
			Help: "Total number of fork invocations processed.",
		},
		[]string{"provider", "strategy", "status"},
	)

	// ForkDuration observes end-to-end fork latency in seconds, covering the
	// warmup call (if any) plus all branches.
	ForkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forkcache_fork_duration_seconds",
			Help:    "End-to-end fork duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "strategy"},
	)

	// BranchesTotal counts executed branches labelled by provider and outcome
	// ("success", "error").
	BranchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkcache_branches_total",
			Help: "Total branches executed across all forks.",
		},
		[]string{"provider", "status"},
	)

	// WarmupCallsTotal counts warmup calls labelled by provider and outcome
	// ("success", "error", "skipped").
	WarmupCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkcache_warmup_calls_total",
			Help: "Total cache warmup calls issued before branch fan-out.",
		},
		[]string{"provider", "status"},
	)

	// TokensSaved counts input tokens served from provider caches instead of
	// being reprocessed.
	TokensSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkcache_tokens_saved_total",
			Help: "Total input tokens served from cache across all branches.",
		},
		[]string{"provider", "model"},
	)

	// SchemaConflicts counts fork invocations whose branches declared
	// divergent output schemas on a shape-sensitive provider.
	SchemaConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forkcache_schema_conflicts_total",
			Help: "Total forks with conflicting branch output schemas.",
		},
		[]string{"provider", "mode"},
	)
)
