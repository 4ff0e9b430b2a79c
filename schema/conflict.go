package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/parallax-ai/forkcache/providers"
)

// Info describes one branch's output shape as seen by the detector.
type Info struct {
	BranchIndex int             `json:"branch_index"`
	Signature   string          `json:"signature"`
	Shape       json.RawMessage `json:"shape,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Group is a set of branches sharing one structural signature.
type Group struct {
	Signature string `json:"signature"`
	Branches  []int  `json:"branches"`
}

// Result is the outcome of conflict detection for one fork call.
type Result struct {
	HasConflict bool    `json:"has_conflict"`
	Groups      []Group `json:"groups,omitempty"`
	Infos       []Info  `json:"infos,omitempty"`
	Message     string  `json:"message,omitempty"`
	// Suggestions are always present on a conflict: every detection comes
	// with a way out.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Options gates detection by provider.
type Options struct {
	Provider providers.Provider
}

var conflictSuggestions = []string{
	"define one universal output shape covering all branches",
	"switch conflicting branches to unstructured generation and post-process locally",
	"accept partial cache reuse and keep the distinct shapes",
	"split the fan-out into one fork per shape group",
}

// DetectConflict groups branch shapes by structural signature. For providers
// whose cache key ignores the output shape it always reports no conflict;
// otherwise any fan-out spanning more than one signature group is a
// conflict. Detection itself is policy-free; see Handle.
func DetectConflict(shapes []json.RawMessage, opts Options) Result {
	if !opts.Provider.ShapeSensitive() {
		return Result{}
	}

	infos := make([]Info, len(shapes))
	bysig := make(map[string][]int)
	for i, shape := range shapes {
		info := Info{BranchIndex: i, Signature: Signature(shape), Shape: shape}
		if len(shape) > 0 {
			var head struct {
				Description string `json:"description"`
			}
			_ = json.Unmarshal(shape, &head)
			info.Description = head.Description
		}
		infos[i] = info
		bysig[info.Signature] = append(bysig[info.Signature], i)
	}

	sigs := make([]string, 0, len(bysig))
	for sig := range bysig {
		sigs = append(sigs, sig)
	}
	// Order groups by first branch index so output is deterministic.
	sort.Slice(sigs, func(a, b int) bool {
		return bysig[sigs[a]][0] < bysig[sigs[b]][0]
	})

	groups := make([]Group, 0, len(sigs))
	for _, sig := range sigs {
		groups = append(groups, Group{Signature: sig, Branches: bysig[sig]})
	}

	res := Result{Groups: groups, Infos: infos}
	if len(groups) > 1 {
		res.HasConflict = true
		res.Message = fmt.Sprintf(
			"fork branches use %d different schemas; cached prefixes will not be shared across shape groups",
			len(groups))
		res.Suggestions = conflictSuggestions
	}
	return res
}

// Mode is the caller's conflict policy. It never changes whether a conflict
// was detected, only what happens afterwards.
type Mode string

// Conflict handling modes.
const (
	ModeAllow Mode = "allow"
	ModeWarn  Mode = "warn"
	ModeError Mode = "error"
)

// ConflictError is returned by Handle under ModeError.
type ConflictError struct {
	Result Result
}

func (e *ConflictError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Result.Message)
	for _, g := range e.Result.Groups {
		fmt.Fprintf(&sb, "\n  branches %v: %s", g.Branches, g.Signature)
	}
	if len(e.Result.Suggestions) > 0 {
		sb.WriteString("\n  suggestions: ")
		sb.WriteString(strings.Join(e.Result.Suggestions, "; "))
	}
	return sb.String()
}

// Handle is the single policy point for a detection result. ModeError turns
// a conflict into a *ConflictError with full detail, ModeWarn into a
// loggable string, ModeAllow into silence. A result without conflict is
// always silent.
func Handle(result Result, mode Mode) (string, error) {
	if !result.HasConflict {
		return "", nil
	}
	switch mode {
	case ModeError:
		return "", &ConflictError{Result: result}
	case ModeWarn:
		return fmt.Sprintf("%s (suggestions: %s)", result.Message, strings.Join(result.Suggestions, "; ")), nil
	default:
		return "", nil
	}
}
