package core

import (
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// Annotation values
// =============================================================================

// ValueKind identifies which member of a Value is populated.
type ValueKind int

// Annotation value kinds.
const (
	// ValueBool is a flag (`@@adapter`) or a literal true/false.
	ValueBool ValueKind = iota
	// ValueString is any scalar value.
	ValueString
	// ValueList is a bracketed or comma-separated list.
	ValueList
	// ValueMap is a nested `{k=v}` block.
	ValueMap
)

// Value is a single annotation value. Exactly one member is meaningful,
// selected by Kind.
type Value struct {
	Kind ValueKind
	Bool bool
	Str  string
	List []string
	Map  AnnotationMap
}

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// ListValue returns a list value.
func ListValue(items ...string) Value { return Value{Kind: ValueList, List: items} }

// MapValue returns a nested map value.
func MapValue(m AnnotationMap) Value { return Value{Kind: ValueMap, Map: m} }

// AsBool interprets the value as a boolean. Strings "true" and "false" are
// accepted case-insensitively.
func (v Value) AsBool() (bool, bool) {
	switch v.Kind {
	case ValueBool:
		return v.Bool, true
	case ValueString:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v.Str)))
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

// AsList interprets the value as a list. A scalar string becomes a list of
// its comma-separated, trimmed tokens.
func (v Value) AsList() []string {
	switch v.Kind {
	case ValueList:
		return v.List
	case ValueString:
		var out []string
		for _, tok := range strings.Split(v.Str, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
		return out
	}
	return nil
}

// String renders the value in annotation syntax.
func (v Value) String() string {
	switch v.Kind {
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueList:
		return "[" + strings.Join(v.List, ", ") + "]"
	case ValueMap:
		return v.Map.String()
	default:
		return v.Str
	}
}

// Equal reports whether two values are structurally identical.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueBool:
		return v.Bool == o.Bool
	case ValueList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := o.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return v.Str == o.Str
	}
}

func (v Value) clone() Value {
	switch v.Kind {
	case ValueList:
		v.List = append([]string(nil), v.List...)
	case ValueMap:
		v.Map = v.Map.Clone()
	}
	return v
}

// AnnotationMap is a raw, open-ended set of annotation keys. Keys are kept
// verbatim so unknown keys survive every merge stage.
type AnnotationMap map[string]Value

// Clone returns a deep copy. A nil map clones to nil.
func (m AnnotationMap) Clone() AnnotationMap {
	if m == nil {
		return nil
	}
	out := make(AnnotationMap, len(m))
	for k, v := range m {
		out[k] = v.clone()
	}
	return out
}

// Keys returns the keys in sorted order.
func (m AnnotationMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (m AnnotationMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String renders the map as a `{k=v, ...}` block with sorted keys.
func (m AnnotationMap) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, k+"="+m[k].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Export converts the map to plain Go values for JSON/YAML output.
func (m AnnotationMap) Export() map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch v.Kind {
		case ValueBool:
			out[k] = v.Bool
		case ValueList:
			out[k] = v.List
		case ValueMap:
			out[k] = v.Map.Export()
		default:
			out[k] = v.Str
		}
	}
	return out
}
