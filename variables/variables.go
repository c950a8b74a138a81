// Package variables implements the tagged value tree the interpreter and
// HTTP engine pass data through: primitives (string, number, boolean,
// null, byte sequences, opaque arrays) and non-primitives (string-keyed
// mappings), merged right-biased and recursively.
package variables

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is any variable-tree node: a primitive Go value (string, float64,
// bool, nil, []byte, []any) or a Mapping. Go's dynamic typing stands in
// for the tagged sum type the source uses a class hierarchy for; Index,
// Merge, and Stringify below are the exhaustive match over the tag.
type Value = any

// Mapping is a non-primitive: a string-keyed map of Values.
type Mapping map[string]Value

// BinaryData is the handle for byte-sequence values with an explicit
// lifecycle, mirroring the source's initialize/destroy/getAllData
// contract for streamed or lazily-materialized binary payloads.
type BinaryData interface {
	Initialize() error
	Destroy() error
	GetAllData() ([]byte, error)
}

// IsPrimitive reports whether v is a primitive value rather than a
// Mapping. Arrays are primitive: they replace wholesale on merge, they
// are never structurally merged element-by-element.
func IsPrimitive(v Value) bool {
	switch v.(type) {
	case Mapping, map[string]any:
		return false
	default:
		return true
	}
}

// AsMapping normalizes v to a Mapping, accepting both the Mapping alias
// and a plain map[string]any (as produced by encoding/json.Unmarshal).
func AsMapping(v Value) (Mapping, bool) {
	switch t := v.(type) {
	case Mapping:
		return t, true
	case map[string]any:
		return Mapping(t), true
	default:
		return nil, false
	}
}

// Merge combines two variable trees right-biased and recursively: for
// matching keys whose values are both non-primitive, merge recurses;
// otherwise b's value replaces a's wholesale, including arrays and other
// primitives. Merge is associative: Merge(Merge(a,b),c) == Merge(a,
// Merge(b,c)) for all Mapping inputs, since a right-biased walk over the
// union of keys is independent of how the calls are grouped.
func Merge(a, b Value) Value {
	am, aIsMap := AsMapping(a)
	bm, bIsMap := AsMapping(b)
	if !aIsMap || !bIsMap {
		// At least one side is primitive (or nil): b wins wholesale.
		if b == nil && bIsMap {
			return am
		}
		return b
	}
	out := make(Mapping, len(am)+len(bm))
	for k, v := range am {
		out[k] = v
	}
	for k, v := range bm {
		if existing, ok := out[k]; ok {
			out[k] = Merge(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}

// MergeAll folds Merge over vs left to right, returning nil for an empty
// slice.
func MergeAll(vs ...Value) Value {
	if len(vs) == 0 {
		return nil
	}
	acc := vs[0]
	for _, v := range vs[1:] {
		acc = Merge(acc, v)
	}
	return acc
}

// FromPath builds the nested Mapping {a:{b:v}} for the dotted key path
// ["a","b"] and leaf value v, as required when an Assignment node's key
// path is turned into a shape for later merge.
func FromPath(path []string, v Value) Value {
	if len(path) == 0 {
		return v
	}
	cur := v
	for i := len(path) - 1; i >= 0; i-- {
		cur = Mapping{path[i]: cur}
	}
	return cur
}

// Index resolves a dotted path (e.g. "a.b.c") or a slice of path
// segments against a variable tree, returning (nil, false) if any
// segment is missing or the tree is primitive before the path is
// exhausted.
func Index(v Value, path ...string) (Value, bool) {
	cur := v
	for _, seg := range path {
		m, ok := AsMapping(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// IndexDotted splits a single dotted-path string and delegates to Index.
func IndexDotted(v Value, dotted string) (Value, bool) {
	if dotted == "" {
		return v, true
	}
	return Index(v, strings.Split(dotted, ".")...)
}

// Flatten produces a single-level map[string]string view of a variable
// tree suitable for URL path-template substitution: only scalar leaves
// (string, number, boolean) are kept, addressed by their dotted path.
// Non-scalar leaves (mappings, arrays, nil, binary data) are omitted —
// callers must diagnose missing/mistyped path parameters from the
// difference between requested and present keys.
func Flatten(v Value) map[string]string {
	out := map[string]string{}
	flattenInto(v, "", out)
	return out
}

func flattenInto(v Value, prefix string, out map[string]string) {
	if m, ok := AsMapping(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenInto(m[k], p, out)
		}
		return
	}
	if s, ok := ScalarString(v); ok && prefix != "" {
		out[prefix] = s
	}
}

// ScalarString renders a string/number/boolean value as a string,
// reporting false for anything else (mappings, arrays, nil, bytes).
func ScalarString(v Value) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// Stringify renders any variable tree as a debug string: scalars
// verbatim, mappings/arrays as compact JSON, falling back to fmt.Sprint
// for anything JSON cannot encode (e.g. a live BinaryData handle).
func Stringify(v Value) string {
	if s, ok := ScalarString(v); ok {
		return s
	}
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
