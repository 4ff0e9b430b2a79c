// Package providers defines the closed set of cache-aware provider
// identities and the shared data types exchanged with the model-invocation
// collaborator.
//
// The engine never calls a provider's generation endpoint itself; branches
// and warmup executors are injected by the caller. This package only fixes
// the vocabulary both sides speak: Provider, Scope, TTL, Request/Response,
// and the wire-level cache options each provider family understands.
package providers

import (
	"context"
	"encoding/json"
)

// Provider identifies a provider family with distinct prompt-cache rules.
// The set is closed: anything unrecognized maps to Other, which is always
// treated as cache-incapable.
type Provider string

// Provider constants. Bedrock is tracked separately from Anthropic because
// Anthropic models served through Bedrock use cache checkpoints without TTL
// control.
const (
	Anthropic Provider = "anthropic"
	OpenAI    Provider = "openai"
	Gemini    Provider = "gemini"
	Bedrock   Provider = "bedrock"
	Other     Provider = "other"
)

// All returns every known provider, Other last.
func All() []Provider {
	return []Provider{Anthropic, OpenAI, Gemini, Bedrock, Other}
}

// Parse maps a provider string to a Provider, folding unknown values into
// Other so downstream dispatch never sees an open set.
func Parse(s string) Provider {
	switch Provider(s) {
	case Anthropic, OpenAI, Gemini, Bedrock:
		return Provider(s)
	default:
		return Other
	}
}

// Known reports whether p is one of the recognized provider families
// (i.e. not Other).
func (p Provider) Known() bool {
	switch p {
	case Anthropic, OpenAI, Gemini, Bedrock:
		return true
	}
	return false
}

// ShapeSensitive reports whether p's prompt-cache key includes the
// structured-output shape. For these providers, branches using different
// output shapes in one fan-out never share cache even after a warmup call.
func (p Provider) ShapeSensitive() bool {
	switch p {
	case Anthropic, Bedrock:
		return true
	}
	return false
}

// ------------------------------------------------------------------- Scope --

// Scope classifies who authored a piece of cacheable content. Scopes are
// ordered by permissiveness: system-authored content is the most restricted
// and most reusable, end-user content the most permissive and least
// trustworthy to reuse.
type Scope string

// Scope constants in increasing permissiveness.
const (
	ScopeSystemOnly       Scope = "system-only"
	ScopeDeveloperContent Scope = "developer-content"
	ScopeAllowUserContent Scope = "allow-user-content"
)

// scopeRank orders scopes by permissiveness for comparison.
var scopeRank = map[Scope]int{
	ScopeSystemOnly:       0,
	ScopeDeveloperContent: 1,
	ScopeAllowUserContent: 2,
}

// Valid reports whether s is a recognized scope.
func (s Scope) Valid() bool {
	_, ok := scopeRank[s]
	return ok
}

// MorePermissiveThan reports whether s allows strictly more content classes
// than other. Unknown scopes compare as most permissive so they can never
// slip past a permissiveness check.
func (s Scope) MorePermissiveThan(other Scope) bool {
	sr, ok := scopeRank[s]
	if !ok {
		return true
	}
	or, ok := scopeRank[other]
	if !ok {
		return false
	}
	return sr > or
}

// --------------------------------------------------------------------- TTL --

// TTL is a provider cache time-to-live. "session" is the neutral lifetime:
// the cache lives as long as the provider's default for the request context
// and requires no TTL support from the provider.
type TTL string

// TTL constants ordered shortest to longest. Session sorts last because a
// session-scoped boundary must enclose every explicitly timed one.
const (
	TTL5Min    TTL = "5m"
	TTL1Hour   TTL = "1h"
	TTLSession TTL = "session"
)

var ttlRank = map[TTL]int{
	TTL5Min:    0,
	TTL1Hour:   1,
	TTLSession: 2,
}

// Valid reports whether t is a recognized TTL value. The empty TTL is not
// valid; callers should default to TTLSession explicitly.
func (t TTL) Valid() bool {
	_, ok := ttlRank[t]
	return ok
}

// LongerThan reports whether t outlives other under the 5m < 1h < session
// ordering. Unknown TTLs compare as shortest.
func (t TTL) LongerThan(other TTL) bool {
	return ttlRank[t] > ttlRank[other]
}

// ---------------------------------------------------------------- Invoker ---

// Message is a single conversation turn handed to the invocation
// collaborator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Request is the engine's view of an inference request: enough to express a
// warmup call or a branch, nothing more. The concrete HTTP encoding belongs
// to the collaborator.
type Request struct {
	Model string `json:"model"`
	// System is the shared system text, kept separate because it is the
	// primary cacheable prefix for most providers.
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
	// OutputShape is an optional JSON Schema constraining the response.
	OutputShape json.RawMessage `json:"output_shape,omitempty"`
	// MaxTokens bounds the completion; warmup calls set this to a minimum.
	MaxTokens int `json:"max_tokens,omitempty"`
	// CacheOptions carries provider cache directives produced by an Adapter.
	CacheOptions *WireOptions `json:"cache_options,omitempty"`
}

// Response is the slice of a provider reply this engine reads. Generated
// content passes through untouched; only usage and metadata are consumed.
type Response struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
	// Usage is the provider-shaped raw usage payload. The stats package
	// normalizes it; an empty or unrecognized payload yields zero stats.
	Usage json.RawMessage `json:"usage,omitempty"`
	// Metadata carries optional provider extras, e.g. a cache-created-token
	// count surfaced outside the usage block.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Invoker is the model-invocation collaborator. Implementations call a
// concrete provider endpoint; the engine only schedules calls and reads
// usage from the responses.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
