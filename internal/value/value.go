// Package value implements the Value Model: a tagged union used wherever
// scripted data crosses the boundary between the script host and the
// engine's protocol clients and metrics pipeline.
package value

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindI64
	KindU64
	KindF64
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindI64:
		return "i64"
	case KindU64:
		return "u64"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// MapKey is the restricted key type permitted in a Value map: String, I64,
// or Bool. It is comparable so it can back a real Go map.
type MapKey struct {
	kind Kind
	s    string
	i    int64
	b    bool
}

func StringKey(s string) MapKey { return MapKey{kind: KindString, s: s} }
func I64Key(i int64) MapKey     { return MapKey{kind: KindI64, i: i} }
func BoolKey(b bool) MapKey     { return MapKey{kind: KindBool, b: b} }

func (k MapKey) Kind() Kind { return k.kind }

func (k MapKey) String() string {
	switch k.kind {
	case KindString:
		return k.s
	case KindI64:
		return strconv.FormatInt(k.i, 10)
	case KindBool:
		return strconv.FormatBool(k.b)
	default:
		return ""
	}
}

// orderedMap preserves insertion order alongside O(1) lookup, matching the
// spec's "Map uses a fast hash; iteration order is insertion-order" clause.
type orderedMap struct {
	keys   []MapKey
	values map[MapKey]Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: make(map[MapKey]Value)}
}

func (m *orderedMap) set(k MapKey, v Value) {
	if _, exists := m.values[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *orderedMap) get(k MapKey) (Value, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Value is the tagged union: Null | Bool | I64 | U64 | F64 | String | Bytes |
// List<Value> | Map<MapKey, Value>.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	u     uint64
	f     float64
	s     string
	bytes []byte
	list  []Value
	m     *orderedMap
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func I64(i int64) Value           { return Value{kind: KindI64, i: i} }
func U64(u uint64) Value          { return Value{kind: KindU64, u: u} }
func F64(f float64) Value         { return Value{kind: KindF64, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value        { return Value{kind: KindBytes, bytes: b} }
func List(items ...Value) Value   { return Value{kind: KindList, list: items} }
func EmptyMap() Value             { return Value{kind: KindMap, m: newOrderedMap()} }

func (v Value) Kind() Kind { return v.kind }

// Truthy implements the script bridge's notion of falsiness: Null,
// Bool(false), empty String/Bytes, and zero numerics are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindI64:
		return v.i != 0
	case KindU64:
		return v.u != 0
	case KindF64:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindBytes:
		return len(v.bytes) != 0
	case KindList:
		return len(v.list) != 0
	case KindMap:
		return v.m != nil && len(v.m.keys) != 0
	default:
		return false
	}
}

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsI64() (int64, bool)       { return v.i, v.kind == KindI64 }
func (v Value) AsU64() (uint64, bool)      { return v.u, v.kind == KindU64 }
func (v Value) AsF64() (float64, bool)     { return v.f, v.kind == KindF64 }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)    { return v.bytes, v.kind == KindBytes }
func (v Value) AsList() ([]Value, bool)    { return v.list, v.kind == KindList }

// MapGet looks up a key in a map Value. It returns (Null, false) for
// non-map values or missing keys.
func (v Value) MapGet(k MapKey) (Value, bool) {
	if v.kind != KindMap || v.m == nil {
		return Null(), false
	}
	return v.m.get(k)
}

// MapSet returns a new map Value with k set to val, preserving insertion
// order of pre-existing keys. Calling MapSet on a non-map Value panics;
// callers are expected to start from EmptyMap().
func (v Value) MapSet(k MapKey, val Value) Value {
	if v.kind != KindMap {
		panic("value: MapSet on non-map Value")
	}
	next := &orderedMap{values: make(map[MapKey]Value, len(v.m.values)+1)}
	next.keys = append(next.keys, v.m.keys...)
	for key, vv := range v.m.values {
		next.values[key] = vv
	}
	next.set(k, val)
	return Value{kind: KindMap, m: next}
}

// MapKeys returns the map's keys in insertion order.
func (v Value) MapKeys() []MapKey {
	if v.kind != KindMap || v.m == nil {
		return nil
	}
	out := make([]MapKey, len(v.m.keys))
	copy(out, v.m.keys)
	return out
}

// MapFromGo builds a map Value from a plain map[string]Value, sorting keys
// for deterministic iteration since Go map order is not meaningful input.
func MapFromGo(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := EmptyMap()
	for _, k := range keys {
		out = out.MapSet(StringKey(k), m[k])
	}
	return out
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindI64:
		return strconv.FormatInt(v.i, 10)
	case KindU64:
		return strconv.FormatUint(v.u, 10)
	case KindF64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.list))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.MapKeys()))
	default:
		return ""
	}
}

// FromGo converts a subset of Go native types (used by the script bridge
// and JSON decoding) into a Value. Unrecognized types become Null.
func FromGo(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return I64(int64(t))
	case int64:
		return I64(t)
	case uint64:
		return U64(t)
	case float64:
		return F64(t)
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromGo(e)
		}
		return List(items...)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, v := range t {
			out[k] = FromGo(v)
		}
		return MapFromGo(out)
	default:
		return Null()
	}
}

// ToGo converts a Value back into plain Go data, the inverse of FromGo, for
// handing values to code (e.g. JSON marshaling, HTTP body serialization)
// that does not understand the Value Model.
func (v Value) ToGo() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindI64:
		return v.i
	case KindU64:
		return v.u
	case KindF64:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bytes
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, e := range v.list {
			out[i] = e.ToGo()
		}
		return out
	case KindMap:
		out := make(map[string]interface{})
		for _, k := range v.MapKeys() {
			val, _ := v.m.get(k)
			out[k.String()] = val.ToGo()
		}
		return out
	default:
		return nil
	}
}
