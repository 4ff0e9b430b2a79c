// Package forkcache plans provider-aware prompt caching and runs parallel
// branch fan-outs against large language model (LLM) providers.
//
// The package is organised around three ideas. Capabilities
// (capabilities.Lookup) describe what caching a provider/model pair actually
// offers. A CacheConfig declares the caller's caching intent and is validated
// against those capabilities before any tokens are spent. Fork executes N
// independent branches over a shared cached prefix, optionally priming the
// provider cache first through a registered Executor.
//
// Configs can be loaded from YAML or JSON files using [LoadCacheConfig].
package forkcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/internal/forklog"
	"github.com/parallax-ai/forkcache/internal/logging"
	"github.com/parallax-ai/forkcache/internal/metrics"
	"github.com/parallax-ai/forkcache/providers"
	"github.com/parallax-ai/forkcache/schema"
	"github.com/parallax-ai/forkcache/segments"
	"github.com/parallax-ai/forkcache/stats"
)

// Strategy selects how a fork balances latency against cache reuse.
type Strategy string

const (
	// StrategyFastParallel launches every branch immediately. Lowest
	// latency; branches race and may each pay full input cost.
	StrategyFastParallel Strategy = "fast-parallel"

	// StrategyCacheOptimized arranges execution so the shared prefix is
	// cached before (or by) the first branch that needs it.
	StrategyCacheOptimized Strategy = "cache-optimized"
)

// WarmupMode selects how a cache-optimized fork primes the provider cache.
type WarmupMode string

const (
	// WarmupNone issues no priming call. Branches still carry cache
	// markers; whichever lands first writes the cache.
	WarmupNone WarmupMode = "none"

	// WarmupExplicit issues one minimal priming call through the registered
	// executor before any branch starts.
	WarmupExplicit WarmupMode = "explicit"

	// WarmupFirstBranch awaits branch 0 so its cache write is visible to
	// the remaining branches, which then run in parallel.
	WarmupFirstBranch WarmupMode = "first-branch"
)

// EventHookFunc is called asynchronously after a fork completes or fails.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking fork hooks.
const (
	SubjectForkCompleted = "forkcache.fork.completed"
	SubjectForkFailed    = "forkcache.fork.failed"
)

// BranchFunc performs one branch's provider call. The cache argument is the
// wire options every branch of the fork shares; it is nil when caching does
// not apply to this fork.
type BranchFunc func(ctx context.Context, cache *providers.WireOptions) (*providers.Response, error)

// Branch is one independent continuation of the shared prefix.
type Branch struct {
	// Name is an optional label used in logs.
	Name string

	// Shape is the branch's declared output JSON Schema, if any. On
	// shape-sensitive providers divergent shapes split the cache.
	Shape json.RawMessage

	Run BranchFunc
}

// Options configures one Fork call.
type Options struct {
	Provider providers.Provider
	Model    string

	// Strategy defaults to fast-parallel.
	Strategy Strategy

	// Warmup applies only to the cache-optimized strategy. Defaults to none.
	Warmup WarmupMode

	Branches []Branch

	// OnSchemaConflict is the policy applied when branches declare divergent
	// output schemas on a shape-sensitive provider. Defaults to warn.
	OnSchemaConflict schema.Mode

	// Config, when set, is validated before anything runs. Blocking
	// validation errors abort the fork with a *ConfigError.
	Config *CacheConfig

	// Segments is the session's segment manager. Nil means no cacheable
	// prefix has been planned and branches receive nil wire options.
	Segments *segments.Manager

	// Capabilities overrides the static table lookup, for callers that
	// resolved capabilities through a catalog-backed Resolver.
	Capabilities *capabilities.Capabilities

	// Registry supplies the warmup executor for explicit warmup mode.
	Registry *ExecutorRegistry

	// Hooks are invoked asynchronously once the fork finishes.
	Hooks []EventHookFunc

	// Log, when set, receives one observational record per fork. Write
	// failures are logged and never propagate.
	Log forklog.Writer
}

// BranchResult is one branch's outcome, indexed by submission order.
type BranchResult struct {
	Index    int
	Name     string
	Response *providers.Response
	Stats    stats.CacheStats
	Duration time.Duration

	// Err is the branch's own failure. A failing branch never discards
	// completed siblings; inspect each result.
	Err error
}

// ForkCacheStats is the uniform cache accounting of one fork. All fields are
// zero when caching did not apply, so downstream reporting never needs to
// special-case uncached forks.
type ForkCacheStats struct {
	// WarmupCost is the input tokens billed for the explicit priming call.
	WarmupCost int

	// PerBranch has exactly one entry per branch, in submission order.
	PerBranch []stats.CacheStats

	// TotalSaved is the summed cache-read tokens across all branches.
	TotalSaved int
}

// ForkResult is the complete outcome of one Fork call.
type ForkResult struct {
	TraceID string

	// Strategy and WarmupMode report what actually ran, after any
	// degradation (e.g. explicit warmup without a registered executor
	// falls back to fast-parallel).
	Strategy   Strategy
	WarmupMode WarmupMode

	Warmup     *WarmupResult
	Branches   []BranchResult
	Warnings   []string
	CacheStats ForkCacheStats
	Duration   time.Duration
}

// Fork validates, plans, and executes a parallel branch fan-out.
//
// Pre-flight work is synchronous: config validation (blocking errors abort
// with *ConfigError), schema conflict handling per OnSchemaConflict, and the
// warmup decision. Branches then run concurrently; each branch's error is
// recorded in its BranchResult and the joined branch errors are returned
// alongside the always-complete result.
func Fork(ctx context.Context, opts Options) (*ForkResult, error) {
	start := time.Now()

	if len(opts.Branches) == 0 {
		return nil, errors.New("fork: at least one branch is required")
	}
	for i, b := range opts.Branches {
		if b.Run == nil {
			return nil, fmt.Errorf("fork: branch %d has no Run function", i)
		}
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyFastParallel
	}
	switch opts.Strategy {
	case StrategyFastParallel, StrategyCacheOptimized:
	default:
		return nil, fmt.Errorf("fork: unknown strategy %q", opts.Strategy)
	}
	if opts.Warmup == "" {
		opts.Warmup = WarmupNone
	}
	switch opts.Warmup {
	case WarmupNone, WarmupExplicit, WarmupFirstBranch:
	default:
		return nil, fmt.Errorf("fork: unknown warmup mode %q", opts.Warmup)
	}
	if opts.OnSchemaConflict == "" {
		opts.OnSchemaConflict = schema.ModeWarn
	}

	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = logging.NewTraceID()
		ctx = logging.WithTraceID(ctx, traceID)
	}
	log := logging.FromContext(ctx)

	var caps capabilities.Capabilities
	if opts.Capabilities != nil {
		caps = *opts.Capabilities
	} else {
		caps = capabilities.Lookup(opts.Provider, opts.Model)
	}

	result := &ForkResult{
		TraceID:    traceID,
		Strategy:   opts.Strategy,
		WarmupMode: opts.Warmup,
	}
	if opts.Strategy == StrategyFastParallel {
		// Warmup modes only modulate the cache-optimized strategy.
		result.WarmupMode = WarmupNone
	}

	// Fail fast on config problems, before any tokens are spent.
	if opts.Config != nil {
		vr := ValidateCacheConfig(*opts.Config, opts.Provider, opts.Model, caps)
		result.Warnings = append(result.Warnings, vr.Warnings...)
		if !vr.Valid {
			metrics.ForksTotal.WithLabelValues(string(opts.Provider), string(opts.Strategy), "rejected").Inc()
			return nil, &ConfigError{Errors: vr.Errors}
		}
	}

	// Divergent branch schemas split the cache on shape-sensitive providers.
	shapes := make([]json.RawMessage, len(opts.Branches))
	for i, b := range opts.Branches {
		shapes[i] = b.Shape
	}
	detection := schema.DetectConflict(shapes, schema.Options{Provider: opts.Provider})
	if detection.HasConflict {
		metrics.SchemaConflicts.WithLabelValues(string(opts.Provider), string(opts.OnSchemaConflict)).Inc()
	}
	conflictMsg, err := schema.Handle(detection, opts.OnSchemaConflict)
	if err != nil {
		metrics.ForksTotal.WithLabelValues(string(opts.Provider), string(opts.Strategy), "rejected").Inc()
		return nil, err
	}
	if conflictMsg != "" {
		result.Warnings = append(result.Warnings, conflictMsg)
		log.Warn("schema conflict across branches",
			"provider", opts.Provider,
			"groups", len(detection.Groups),
		)
	}

	cachingEnabled := caps.Supported &&
		(opts.Config == nil || opts.Config.Enabled) &&
		opts.Segments != nil && opts.Segments.Count() > 0

	var wire *providers.WireOptions
	if cachingEnabled {
		w := providers.AdapterFor(opts.Provider).Project(opts.Segments.Plan())
		wire = &w
	}

	// Warmup decision for the cache-optimized strategy. Degradations here
	// are warnings, never failures: the fork always runs.
	if opts.Strategy == StrategyCacheOptimized && opts.Warmup == WarmupExplicit {
		warmup, warnings, fellBack := runExplicitWarmup(ctx, opts, caps, wire)
		result.Warnings = append(result.Warnings, warnings...)
		if fellBack {
			result.Strategy = StrategyFastParallel
			result.WarmupMode = WarmupNone
		} else if warmup != nil {
			result.Warmup = warmup
			result.CacheStats.WarmupCost = warmup.TokenCost
		}
	}

	// Execute. The zero-value errgroup never cancels siblings: a failing
	// branch must not discard completed results.
	results := make([]BranchResult, len(opts.Branches))
	runBranch := func(i int) {
		bstart := time.Now()
		resp, berr := opts.Branches[i].Run(ctx, wire)
		results[i] = BranchResult{
			Index:    i,
			Name:     opts.Branches[i].Name,
			Response: resp,
			Duration: time.Since(bstart),
			Err:      berr,
		}
		status := "success"
		if berr != nil {
			status = "error"
		}
		metrics.BranchesTotal.WithLabelValues(string(opts.Provider), status).Inc()
	}

	next := 0
	if result.Strategy == StrategyCacheOptimized && result.WarmupMode == WarmupFirstBranch && len(opts.Branches) > 1 {
		// Branch 0 runs alone so its cache write is visible to the rest.
		runBranch(0)
		next = 1
	}
	var g errgroup.Group
	for i := next; i < len(opts.Branches); i++ {
		g.Go(func() error {
			runBranch(i)
			return nil
		})
	}
	_ = g.Wait()

	// Uniform per-branch accounting. Real usage is parsed only on the
	// cache-optimized path; otherwise the entries stay zeroed.
	parseUsage := result.Strategy == StrategyCacheOptimized && cachingEnabled
	perBranch := make([]stats.CacheStats, len(results))
	for i := range results {
		if parseUsage && results[i].Err == nil && results[i].Response != nil && len(results[i].Response.Usage) > 0 {
			perBranch[i] = stats.Parse(results[i].Response.Usage, opts.Provider, opts.Model)
		} else {
			perBranch[i] = stats.CacheStats{Provider: opts.Provider, Model: opts.Model}
		}
		results[i].Stats = perBranch[i]
	}
	aggregate := stats.Aggregate(perBranch)
	result.Branches = results
	result.CacheStats.PerBranch = perBranch
	result.CacheStats.TotalSaved = aggregate.SavedTokens
	if aggregate.SavedTokens > 0 {
		metrics.TokensSaved.WithLabelValues(string(opts.Provider), opts.Model).Add(float64(aggregate.SavedTokens))
	}

	var branchErrs []error
	for i := range results {
		if results[i].Err != nil {
			branchErrs = append(branchErrs, fmt.Errorf("branch %d: %w", i, results[i].Err))
		}
	}

	result.Duration = time.Since(start)
	status := "success"
	subject := SubjectForkCompleted
	if len(branchErrs) > 0 {
		status = "error"
		subject = SubjectForkFailed
	}
	metrics.ForkDuration.WithLabelValues(string(opts.Provider), string(result.Strategy)).Observe(result.Duration.Seconds())
	metrics.ForksTotal.WithLabelValues(string(opts.Provider), string(result.Strategy), status).Inc()

	log.Info("fork completed",
		"provider", opts.Provider,
		"model", opts.Model,
		"strategy", result.Strategy,
		"warmup_mode", result.WarmupMode,
		"branches", len(results),
		"failed", len(branchErrs),
		"warmup_cost", result.CacheStats.WarmupCost,
		"saved_tokens", result.CacheStats.TotalSaved,
		"latency_ms", result.Duration.Milliseconds(),
	)

	publishHooks(ctx, opts.Hooks, subject, map[string]interface{}{
		"trace_id":     traceID,
		"provider":     string(opts.Provider),
		"model":        opts.Model,
		"strategy":     string(result.Strategy),
		"warmup_mode":  string(result.WarmupMode),
		"branches":     len(results),
		"failed":       len(branchErrs),
		"warmup_cost":  result.CacheStats.WarmupCost,
		"saved_tokens": result.CacheStats.TotalSaved,
		"latency_ms":   result.Duration.Milliseconds(),
		"timestamp":    time.Now(),
	})

	if opts.Log != nil {
		entry := forklog.Entry{
			TraceID:      traceID,
			Provider:     string(opts.Provider),
			Model:        opts.Model,
			Strategy:     string(result.Strategy),
			WarmupMode:   string(result.WarmupMode),
			Branches:     len(results),
			WarmupCost:   result.CacheStats.WarmupCost,
			SavedTokens:  result.CacheStats.TotalSaved,
			CacheHitRate: aggregate.CacheHitRate,
		}
		if joined := errors.Join(branchErrs...); joined != nil {
			entry.ErrorMessage = joined.Error()
		}
		if werr := opts.Log.Write(ctx, entry); werr != nil {
			log.Warn("fork log write failed", "error", werr.Error())
		}
	}

	return result, errors.Join(branchErrs...)
}

// runExplicitWarmup issues the priming call for explicit warmup mode. It
// returns the warmup result (nil when skipped or failed), any warnings, and
// whether the fork must fall back to fast-parallel.
func runExplicitWarmup(ctx context.Context, opts Options, caps capabilities.Capabilities, wire *providers.WireOptions) (*WarmupResult, []string, bool) {
	var warnings []string

	if !ShouldWarmup(caps, opts.Segments, len(opts.Branches)) {
		reason := "caching conditions not met"
		if opts.Segments != nil {
			if _, r := opts.Segments.WorthCaching(); r != "" {
				reason = r
			}
		}
		if caps.Automatic {
			reason = "provider caches automatically"
		}
		if len(opts.Branches) <= 1 {
			reason = "single branch gains nothing from priming"
		}
		warnings = append(warnings, fmt.Sprintf("warmup skipped: %s", reason))
		metrics.WarmupCallsTotal.WithLabelValues(string(opts.Provider), "skipped").Inc()
		return nil, warnings, false
	}

	var exec Executor
	var ok bool
	if opts.Registry != nil {
		exec, ok = opts.Registry.Current()
	}
	if !ok {
		warnings = append(warnings, "no warmup executor registered; falling back to fast-parallel execution")
		metrics.WarmupCallsTotal.WithLabelValues(string(opts.Provider), "skipped").Inc()
		return nil, warnings, true
	}
	if !exec.SupportsOptimization(opts.Provider) {
		warnings = append(warnings, fmt.Sprintf("registered executor does not support %s; falling back to fast-parallel execution", opts.Provider))
		metrics.WarmupCallsTotal.WithLabelValues(string(opts.Provider), "skipped").Inc()
		return nil, warnings, true
	}

	req := WarmupRequest{
		Provider: opts.Provider,
		Model:    opts.Model,
		Segments: opts.Segments.Segments(),
	}
	for _, s := range req.Segments {
		if s.Key == segments.SystemSegmentKey {
			req.System = s.Content
			break
		}
	}
	if wire != nil {
		req.Options = *wire
	}

	res, err := exec.Warmup(ctx, req)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("warmup call failed: %v; branches proceed without priming", err))
		metrics.WarmupCallsTotal.WithLabelValues(string(opts.Provider), "error").Inc()
		return nil, warnings, false
	}
	metrics.WarmupCallsTotal.WithLabelValues(string(opts.Provider), "success").Inc()
	return res, warnings, false
}

// publishHooks calls all registered hooks asynchronously.
func publishHooks(ctx context.Context, hooks []EventHookFunc, subject string, data map[string]interface{}) {
	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}
