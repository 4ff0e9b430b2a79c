package forkcache

import (
	"context"
	"sync"
	"time"

	"github.com/parallax-ai/forkcache/providers"
	"github.com/parallax-ai/forkcache/segments"
)

// WarmupRequest carries everything an executor needs to issue one minimal
// cache-priming call: the session's cacheable prefix plus the wire options
// the branches will later reuse verbatim.
type WarmupRequest struct {
	Provider providers.Provider
	Model    string
	System   string
	Segments []segments.Segment
	Options  providers.WireOptions
}

// WarmupResult reports what the priming call cost and created.
type WarmupResult struct {
	// TokenCost is the input tokens billed for the warmup call itself.
	TokenCost int
	// CacheCreatedTokens is how many of those tokens were written to cache.
	CacheCreatedTokens int
	Duration           time.Duration
}

// Executor performs provider calls on behalf of the fork scheduler. The
// scheduler itself never talks to a provider; an executor is registered by
// the embedding application and consulted only when a strategy needs a
// warmup call.
type Executor interface {
	// Warmup issues one minimal call that primes the provider cache with the
	// session's cacheable prefix.
	Warmup(ctx context.Context, req WarmupRequest) (*WarmupResult, error)

	// SupportsOptimization reports whether this executor can perform
	// cache-priming calls against the given provider.
	SupportsOptimization(p providers.Provider) bool
}

// ExecutorRegistry holds the executor the scheduler consults. It is a plain
// injected dependency: constructing one has no side effects, and nothing is
// registered at import time.
type ExecutorRegistry struct {
	mu   sync.RWMutex
	exec Executor
}

// NewExecutorRegistry returns an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{}
}

// Register installs the executor, replacing any previous one.
func (r *ExecutorRegistry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec = e
}

// Clear removes the registered executor.
func (r *ExecutorRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec = nil
}

// Current returns the registered executor, if any.
func (r *ExecutorRegistry) Current() (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exec, r.exec != nil
}
