// Package segments tracks the cacheable content chunks registered for one
// session and enforces per-segment and aggregate constraints against the
// target model's cache capabilities.
//
// A Manager lives exactly as long as the session it serves. Segments are
// registered before fork execution and read-only afterwards; nothing here is
// persisted beyond the wire-level request the segments feed.
package segments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parallax-ai/forkcache/capabilities"
	"github.com/parallax-ai/forkcache/providers"
)

// Segment is one registered cacheable content chunk.
type Segment struct {
	Key             string          `json:"key"`
	Content         string          `json:"content"`
	EstimatedTokens int             `json:"estimated_tokens"`
	TTL             providers.TTL   `json:"ttl"`
	Scope           providers.Scope `json:"scope"`
	Forced          bool            `json:"forced"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AddOptions controls how a segment is registered. The zero value inherits
// the manager defaults.
type AddOptions struct {
	TTL   providers.TTL
	Scope providers.Scope
	// Force accepts a constraint violation explicitly: below-floor content,
	// an over-budget segment count, or a scope wider than the default. Every
	// forced acceptance still produces a warning.
	Force bool
}

// Config carries the caller-owned defaults a Manager validates against.
type Config struct {
	DefaultScope providers.Scope
	DefaultTTL   providers.TTL
	// MaxSegments caps registrations; zero means capability limit only.
	MaxSegments int
}

// ErrorCode classifies segment validation failures.
type ErrorCode string

// Validation error codes.
const (
	CodeDuplicateKey   ErrorCode = "duplicate-key"
	CodeUnsupported    ErrorCode = "caching-unsupported"
	CodeTooMany        ErrorCode = "segment-budget-exceeded"
	CodeInvalidTTL     ErrorCode = "invalid-ttl"
	CodeBelowFloor     ErrorCode = "below-token-floor"
	CodeScopeViolation ErrorCode = "scope-violation"
)

// ValidationError is a blocking segment rejection. It is never returned for
// a violation the caller forced; those come back as warnings instead.
type ValidationError struct {
	Key    string
	Code   ErrorCode
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("segment %q: %s: %s", e.Key, e.Code, e.Detail)
}

// Manager tracks segments for one session. It is not safe for concurrent
// mutation; registration happens before fork execution, reads after.
type Manager struct {
	sessionID string
	provider  providers.Provider
	model     string
	caps      capabilities.Capabilities
	cfg       Config
	estimator Estimator

	segments map[string]*Segment
	order    []string
}

// NewManager creates a Manager for one session against a resolved capability
// record. Zero-value Config fields default to the most restrictive scope and
// the session TTL.
func NewManager(provider providers.Provider, model string, caps capabilities.Capabilities, cfg Config) *Manager {
	if cfg.DefaultScope == "" {
		cfg.DefaultScope = providers.ScopeSystemOnly
	}
	if cfg.DefaultTTL == "" {
		cfg.DefaultTTL = providers.TTLSession
	}
	return &Manager{
		sessionID: uuid.NewString(),
		provider:  provider,
		model:     model,
		caps:      caps,
		cfg:       cfg,
		estimator: HeuristicEstimator{},
		segments:  make(map[string]*Segment),
	}
}

// WithEstimator replaces the default chars/4 heuristic, e.g. with a
// TiktokenEstimator for model-accurate counts.
func (m *Manager) WithEstimator(e Estimator) *Manager {
	if e != nil {
		m.estimator = e
	}
	return m
}

// SessionID returns the unique session identifier.
func (m *Manager) SessionID() string { return m.sessionID }

// budget is the effective segment limit: the tighter of the configured
// maximum and the capability planning limit.
func (m *Manager) budget() int {
	limit := m.caps.EffectiveBreakpoints()
	if m.cfg.MaxSegments > 0 && m.cfg.MaxSegments < limit {
		limit = m.cfg.MaxSegments
	}
	return limit
}

// AddSegment registers a cacheable chunk under a session-unique key.
// Violations are blocking unless forced; forced acceptances and harmless
// degradations come back as warning strings. Warnings are never errors.
func (m *Manager) AddSegment(key, content string, opts AddOptions) ([]string, error) {
	if _, exists := m.segments[key]; exists {
		return nil, &ValidationError{Key: key, Code: CodeDuplicateKey,
			Detail: "a segment with this key is already registered"}
	}
	if !m.caps.Supported {
		return nil, &ValidationError{Key: key, Code: CodeUnsupported,
			Detail: fmt.Sprintf("provider %s model %s does not support prompt caching", m.provider, m.model)}
	}

	var warnings []string

	if budget := m.budget(); len(m.segments) >= budget {
		if !opts.Force {
			return nil, &ValidationError{Key: key, Code: CodeTooMany,
				Detail: fmt.Sprintf("segment budget of %d already used", budget)}
		}
		warnings = append(warnings,
			fmt.Sprintf("segment %q forced past the budget of %d; the provider will ignore extra boundaries", key, budget))
	}

	ttl := opts.TTL
	if ttl == "" {
		ttl = m.cfg.DefaultTTL
	}
	if !ttl.Valid() {
		return nil, &ValidationError{Key: key, Code: CodeInvalidTTL,
			Detail: fmt.Sprintf("unknown ttl %q", ttl)}
	}
	if ttl != providers.TTLSession && !m.caps.ValidTTL(ttl) {
		if m.caps.SupportsTTL {
			// The provider does TTLs, just not this one. Blocking.
			return nil, &ValidationError{Key: key, Code: CodeInvalidTTL,
				Detail: fmt.Sprintf("ttl %q is not supported for %s/%s", ttl, m.provider, m.model)}
		}
		// No TTL control at all: degrade to session and say so.
		warnings = append(warnings,
			fmt.Sprintf("segment %q requested ttl %q but %s has no ttl control; using session lifetime", key, ttl, m.provider))
		ttl = providers.TTLSession
	}

	scope := opts.Scope
	if scope == "" {
		scope = m.cfg.DefaultScope
	}
	if !scope.Valid() {
		return nil, &ValidationError{Key: key, Code: CodeScopeViolation,
			Detail: fmt.Sprintf("unknown scope %q", scope)}
	}
	if scope.MorePermissiveThan(m.cfg.DefaultScope) {
		if !opts.Force {
			return nil, &ValidationError{Key: key, Code: CodeScopeViolation,
				Detail: fmt.Sprintf("scope %q is more permissive than the default %q", scope, m.cfg.DefaultScope)}
		}
		warnings = append(warnings,
			fmt.Sprintf("segment %q forced scope %q past default %q", key, scope, m.cfg.DefaultScope))
	}

	tokens := m.estimator.EstimateTokens(content)
	if tokens < m.caps.MinTokens {
		if !opts.Force {
			return nil, &ValidationError{Key: key, Code: CodeBelowFloor,
				Detail: fmt.Sprintf("estimated %d tokens, provider floor is %d", tokens, m.caps.MinTokens)}
		}
		warnings = append(warnings,
			fmt.Sprintf("segment %q forced below the %d-token floor (%d estimated); it will likely not be cached", key, m.caps.MinTokens, tokens))
	}

	seg := &Segment{
		Key:             key,
		Content:         content,
		EstimatedTokens: tokens,
		TTL:             ttl,
		Scope:           scope,
		Forced:          opts.Force,
		CreatedAt:       time.Now(),
	}
	m.segments[key] = seg
	m.order = append(m.order, key)
	return warnings, nil
}

// SystemSegmentKey is the reserved key for the session's system segment.
const SystemSegmentKey = "system"

// AddSystemSegment registers the system text as a segment. System content is
// the most stable, most reusable, and least sensitive content a session has,
// so it is pinned to the system-only scope and, by default, the longest TTL
// the provider supports.
func (m *Manager) AddSystemSegment(content string, opts AddOptions) ([]string, error) {
	opts.Scope = providers.ScopeSystemOnly
	if opts.TTL == "" {
		opts.TTL = m.caps.LongestTTL()
	}
	return m.AddSegment(SystemSegmentKey, content, opts)
}

// ----------------------------------------------------------------- Queries --

// Segments returns all registered segments in registration order.
func (m *Manager) Segments() []Segment {
	out := make([]Segment, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, *m.segments[key])
	}
	return out
}

// Count returns the number of registered segments.
func (m *Manager) Count() int { return len(m.segments) }

// TotalEstimatedTokens sums the token estimates of all registered segments.
func (m *Manager) TotalEstimatedTokens() int {
	total := 0
	for _, s := range m.segments {
		total += s.EstimatedTokens
	}
	return total
}

// ByScope returns the segments registered at exactly the given scope.
func (m *Manager) ByScope(scope providers.Scope) []Segment {
	var out []Segment
	for _, key := range m.order {
		if s := m.segments[key]; s.Scope == scope {
			out = append(out, *s)
		}
	}
	return out
}

// ByTTL returns the segments registered with exactly the given TTL.
func (m *Manager) ByTTL(ttl providers.TTL) []Segment {
	var out []Segment
	for _, key := range m.order {
		if s := m.segments[key]; s.TTL == ttl {
			out = append(out, *s)
		}
	}
	return out
}

// WorthCaching is a read-only check of whether the registered content would
// benefit from cache priming: caching must be supported and the aggregate
// estimate must clear the provider floor. The returned string explains a
// negative verdict.
func (m *Manager) WorthCaching() (bool, string) {
	if !m.caps.Supported {
		return false, fmt.Sprintf("%s/%s does not support prompt caching", m.provider, m.model)
	}
	if len(m.segments) == 0 {
		return false, "no segments registered"
	}
	if total := m.TotalEstimatedTokens(); total < m.caps.MinTokens {
		return false, fmt.Sprintf("aggregate estimate %d tokens is below the %d-token floor", total, m.caps.MinTokens)
	}
	return true, ""
}

// RevalidateFor checks every registered segment against a different target
// model, for replaying a session elsewhere. The manager is not modified;
// each violation is returned as its own error.
func (m *Manager) RevalidateFor(provider providers.Provider, model string, caps capabilities.Capabilities) []error {
	var errs []error
	if !caps.Supported {
		errs = append(errs, &ValidationError{Key: "*", Code: CodeUnsupported,
			Detail: fmt.Sprintf("provider %s model %s does not support prompt caching", provider, model)})
		return errs
	}
	if budget := caps.EffectiveBreakpoints(); len(m.segments) > budget {
		errs = append(errs, &ValidationError{Key: "*", Code: CodeTooMany,
			Detail: fmt.Sprintf("%d segments registered, target budget is %d", len(m.segments), budget)})
	}
	for _, key := range m.order {
		s := m.segments[key]
		if s.TTL != providers.TTLSession && !caps.ValidTTL(s.TTL) {
			errs = append(errs, &ValidationError{Key: key, Code: CodeInvalidTTL,
				Detail: fmt.Sprintf("ttl %q is not supported for %s/%s", s.TTL, provider, model)})
		}
		if !s.Forced && s.EstimatedTokens < caps.MinTokens {
			errs = append(errs, &ValidationError{Key: key, Code: CodeBelowFloor,
				Detail: fmt.Sprintf("estimated %d tokens, target floor is %d", s.EstimatedTokens, caps.MinTokens)})
		}
	}
	return errs
}

// Plan projects the registered segments into the provider-agnostic cache
// plan the wire adapters consume.
func (m *Manager) Plan() providers.Plan {
	plan := providers.Plan{
		DefaultTTL:     m.cfg.DefaultTTL,
		MaxBreakpoints: m.budget(),
	}
	for _, key := range m.order {
		s := m.segments[key]
		plan.Boundaries = append(plan.Boundaries, providers.Boundary{
			Key:    s.Key,
			TTL:    s.TTL,
			Tokens: s.EstimatedTokens,
		})
	}
	return plan
}
