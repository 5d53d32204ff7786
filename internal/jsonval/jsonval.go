// Package jsonval models a recursive, explicitly-typed JSON value. It
// replaces the duck-typed parameter maps of the source system with a value
// that carries its own type tag, so binding resolution can type-check
// against a declared expected type instead of relying on reflection.
package jsonval

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the shape of a Value.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Value is a recursive JSON-like value with an explicit Kind tag.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

// String constructs a string-kinded value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number constructs a number-kinded value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool constructs a bool-kinded value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List constructs a list-kinded value.
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Map constructs a map-kinded value from the given fields.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: fields}
}

// FromAny converts an untyped value, as produced by encoding/json.Unmarshal
// into interface{}, into a typed Value. It fails closed on any shape it does
// not recognize rather than silently coercing it.
func FromAny(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case bool:
		return Bool(x), nil
	case []interface{}:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, converted)
		}
		return List(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = converted
		}
		return Map(fields), nil
	default:
		return Value{}, fmt.Errorf("jsonval: unsupported value type %T", v)
	}
}

// ParseObject parses raw JSON text that must describe a top-level object,
// returning it as a map-kinded Value. Used to validate PARAMETERS blocks.
func ParseObject(raw string) (Value, error) {
	var decoded interface{}
	dec := json.NewDecoder(stringsReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Value{}, fmt.Errorf("jsonval: invalid JSON: %w", err)
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return Value{}, fmt.Errorf("jsonval: expected a JSON object, got %T", decoded)
	}
	return fromAnyWithNumber(obj)
}

// fromAnyWithNumber is like FromAny but additionally accepts json.Number,
// as produced by a Decoder configured with UseNumber.
func fromAnyWithNumber(v interface{}) (Value, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("jsonval: invalid number %q: %w", x.String(), err)
		}
		return Number(f), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			converted, err := fromAnyWithNumber(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = converted
		}
		return Map(fields), nil
	case []interface{}:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			converted, err := fromAnyWithNumber(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, converted)
		}
		return List(items...), nil
	default:
		return FromAny(v)
	}
}

// ToAny converts a Value back into plain interface{} data, suitable for
// encoding/json marshaling (map keys marshal in sorted order by default).
func (v Value) ToAny() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.ToAny()
		}
		return out
	default:
		return nil
	}
}

// DeepCopy returns an independent copy of v, so that shared structures
// (token parameters, step outputs) can be frozen against later mutation.
func (v Value) DeepCopy() Value {
	switch v.Kind {
	case KindList:
		out := make([]Value, len(v.List))
		for i, item := range v.List {
			out[i] = item.DeepCopy()
		}
		return Value{Kind: KindList, List: out}
	case KindMap:
		out := make(map[string]Value, len(v.Map))
		for k, item := range v.Map {
			out[k] = item.DeepCopy()
		}
		return Value{Kind: KindMap, Map: out}
	default:
		return v
	}
}

// MarshalJSON implements deterministic JSON encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// Get resolves a dot-separated path into a map/list-shaped Value. List
// segments must be non-negative integer indices. Returns ok=false, rather
// than an error, when the path does not resolve — callers decide whether
// that is a binding failure.
func (v Value) Get(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segments := splitPath(path)
	current := v
	for _, seg := range segments {
		switch current.Kind {
		case KindMap:
			next, ok := current.Map[seg]
			if !ok {
				return Value{}, false
			}
			current = next
		case KindList:
			idx, err := parseIndex(seg)
			if err != nil || idx < 0 || idx >= len(current.List) {
				return Value{}, false
			}
			current = current.List[idx]
		default:
			return Value{}, false
		}
	}
	return current, true
}

// SetPath writes val at a dot-separated path into a map-kinded v, creating
// any missing intermediate maps along the way. It walks the segments in the
// same order as Get, writing instead of reading. Calling SetPath on a
// non-map v is a no-op: target_path
// only ever addresses a step's parameters, which are always a map.
func (v Value) SetPath(path string, val Value) {
	if v.Kind != KindMap || path == "" {
		return
	}
	setPath(v.Map, splitPath(path), val)
}

func setPath(m map[string]Value, segments []string, val Value) {
	key := segments[0]
	if len(segments) == 1 {
		m[key] = val
		return
	}
	child, ok := m[key]
	if !ok || child.Kind != KindMap {
		child = Map(nil)
	}
	setPath(child.Map, segments[1:], val)
	m[key] = child
}

// MatchesType reports whether v's Kind matches the declared expected type
// name (one of: string, number, bool, list, map, any).
func (v Value) MatchesType(expected string) bool {
	if expected == "any" {
		return true
	}
	return string(v.Kind) == expected
}

// SortedKeys returns a map's keys in sorted order, for deterministic
// iteration during serialization and display.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
