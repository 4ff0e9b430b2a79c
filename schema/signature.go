// Package schema computes structural signatures of structured-output shapes
// and detects branch fan-outs whose shapes silently defeat cache reuse.
//
// For providers whose cache key includes the output shape, two branches with
// different shapes never share cache even after a warmup call. Signatures
// canonicalize field names, nesting, and descriptions so shape-compatible
// branches can be grouped; anything the walker does not recognize gets a
// per-call random signature: different when in doubt, never a false match.
package schema

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Signature returns the canonical structural signature of a JSON Schema
// document. Stable across recomputation for an unchanged shape; changes
// under any field rename or type change. Unparseable or unrecognizable
// shapes yield a unique opaque signature per call.
func Signature(shape json.RawMessage) string {
	if len(shape) == 0 {
		return "none"
	}
	// A document the schema compiler rejects cannot be canonicalized.
	if _, err := jsonschema.CompileString("shape.json", string(shape)); err != nil {
		return opaqueSignature()
	}

	var doc any
	if err := json.Unmarshal(shape, &doc); err != nil {
		return opaqueSignature()
	}
	sig, ok := walk(doc)
	if !ok {
		return opaqueSignature()
	}
	return sig
}

// opaqueSignature is the guaranteed-non-match fallback for unknown node
// kinds: 16 random bytes, unique per call.
func opaqueSignature() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "opaque:" + hex.EncodeToString(b)
}

// walk canonicalizes one schema node. The node-kind set is closed: object,
// record, tuple, array, primitive, enum, const, union, nullable, default.
// Returns ok=false for anything else.
func walk(node any) (string, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return "", false
	}

	var sb strings.Builder

	// default wraps the node it annotates.
	if dv, has := m["default"]; has {
		inner := withoutKey(m, "default")
		innerSig, ok := walk(inner)
		if !ok {
			return "", false
		}
		sb.WriteString("default(")
		sb.WriteString(canonValue(dv))
		sb.WriteString(")<")
		sb.WriteString(innerSig)
		sb.WriteString(">")
		return annotate(sb.String(), m), true
	}

	if cv, has := m["const"]; has {
		return annotate("lit("+canonValue(cv)+")", m), true
	}

	if ev, has := m["enum"]; has {
		vals, ok := ev.([]any)
		if !ok {
			return "", false
		}
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			parts = append(parts, canonValue(v))
		}
		sort.Strings(parts)
		return annotate("enum("+strings.Join(parts, "|")+")", m), true
	}

	for _, key := range []string{"anyOf", "oneOf"} {
		if uv, has := m[key]; has {
			variants, ok := uv.([]any)
			if !ok {
				return "", false
			}
			parts := make([]string, 0, len(variants))
			for _, v := range variants {
				sig, ok := walk(v)
				if !ok {
					return "", false
				}
				parts = append(parts, sig)
			}
			sort.Strings(parts)
			return annotate("union("+strings.Join(parts, "|")+")", m), true
		}
	}

	switch tv := m["type"].(type) {
	case string:
		return walkTyped(m, tv)
	case []any:
		// ["string","null"] style nullability.
		var types []string
		nullable := false
		for _, t := range tv {
			s, ok := t.(string)
			if !ok {
				return "", false
			}
			if s == "null" {
				nullable = true
				continue
			}
			types = append(types, s)
		}
		if len(types) != 1 {
			return "", false
		}
		inner, ok := walkTyped(m, types[0])
		if !ok {
			return "", false
		}
		if nullable {
			inner = "nullable<" + inner + ">"
		}
		return inner, true
	case nil:
		return "", false
	default:
		return "", false
	}
}

// walkTyped canonicalizes a node with a single concrete type.
func walkTyped(m map[string]any, typ string) (string, bool) {
	switch typ {
	case "string":
		return annotate("str", m), true
	case "number":
		return annotate("num", m), true
	case "integer":
		return annotate("int", m), true
	case "boolean":
		return annotate("bool", m), true
	case "null":
		return annotate("null", m), true

	case "array":
		if pv, has := m["prefixItems"]; has {
			items, ok := pv.([]any)
			if !ok {
				return "", false
			}
			parts := make([]string, 0, len(items))
			for _, it := range items {
				sig, ok := walk(it)
				if !ok {
					return "", false
				}
				parts = append(parts, sig)
			}
			return annotate("tup("+strings.Join(parts, ",")+")", m), true
		}
		items, has := m["items"]
		if !has {
			return annotate("arr[any]", m), true
		}
		sig, ok := walk(items)
		if !ok {
			return "", false
		}
		return annotate("arr["+sig+"]", m), true

	case "object":
		props, hasProps := m["properties"].(map[string]any)
		if !hasProps || len(props) == 0 {
			// A property-less object with a value schema is a record.
			if ap, has := m["additionalProperties"]; has {
				if apm, ok := ap.(map[string]any); ok {
					sig, ok := walk(apm)
					if !ok {
						return "", false
					}
					return annotate("rec<"+sig+">", m), true
				}
			}
			return annotate("obj{}", m), true
		}

		required := map[string]bool{}
		if rv, has := m["required"].([]any); has {
			for _, r := range rv {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			sig, ok := walk(props[name])
			if !ok {
				return "", false
			}
			marker := ""
			if !required[name] {
				marker = "?"
			}
			parts = append(parts, name+marker+":"+sig)
		}
		return annotate("obj{"+strings.Join(parts, ",")+"}", m), true
	}
	return "", false
}

// annotate appends the node description so two shapes that differ only in
// wording still sign differently; the description is part of what the
// provider caches.
func annotate(sig string, m map[string]any) string {
	if d, ok := m["description"].(string); ok && d != "" {
		return sig + "~" + quote(d)
	}
	return sig
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// canonValue renders a literal or enum member deterministically.
func canonValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// withoutKey copies m minus one key.
func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}
