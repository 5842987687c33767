// Package value implements the dynamic value variant records are built
// from, plus the deterministic stringification the Merkle trie and query
// comparator both depend on. Record values in the core are opaque to the
// host except through this variant.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the active alternative of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindArray
	KindMap
)

// Value is a tagged variant: Null | Bool | Int | Float | Text | Bytes |
// Array<Value> | Map<Text, Value>. Only one of the typed fields is
// meaningful for a given Kind.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string
	bytes []byte
	arr   []Value
	m     map[string]Value
}

func Null() Value              { return Value{kind: KindNull} }
func Bool(v bool) Value        { return Value{kind: KindBool, b: v} }
func Int(v int64) Value        { return Value{kind: KindInt, i: v} }
func Float(v float64) Value    { return Value{kind: KindFloat, f: v} }
func Text(v string) Value      { return Value{kind: KindText, s: v} }
func Bytes(v []byte) Value     { return Value{kind: KindBytes, bytes: v} }
func Array(v []Value) Value    { return Value{kind: KindArray, arr: v} }
func Map(v map[string]Value) Value {
	return Value{kind: KindMap, m: v}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)          { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)          { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)      { return v.f, v.kind == KindFloat }
func (v Value) Text() (string, bool)        { return v.s, v.kind == KindText }
func (v Value) BytesVal() ([]byte, bool)    { return v.bytes, v.kind == KindBytes }
func (v Value) Array() ([]Value, bool)      { return v.arr, v.kind == KindArray }
func (v Value) Map() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// AsFloat64 coerces numeric kinds to float64 for comparator/range use; ok
// is false for non-numeric kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Stringify deterministically renders a Value to text for Merkle entry
// hashing and comparator use: primitives render as their textual form,
// objects render as JSON with keys sorted lexicographically at the top
// level, and null/undefined render as the literal strings
// "null"/"undefined".
func Stringify(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBytes:
		return string(v.bytes)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = Stringify(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b, err := json.Marshal(orderedObject(v.m, keys))
		if err != nil {
			return fmt.Sprintf("%v", v.m)
		}
		return string(b)
	default:
		return "undefined"
	}
}

// orderedObject renders a map as a JSON object whose keys appear in the
// given sorted order; encoding/json sorts map keys itself for
// map[string]any, so this just forces a deterministic intermediate.
func orderedObject(m map[string]Value, keys []string) json.RawMessage {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		b.WriteString(jsonScalar(m[k]))
	}
	b.WriteByte('}')
	return json.RawMessage(b.String())
}

func jsonScalar(v Value) string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		b, _ := json.Marshal(v.s)
		return string(b)
	case KindBytes:
		b, _ := json.Marshal(string(v.bytes))
		return string(b)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = jsonScalar(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return string(orderedObject(v.m, keys))
	default:
		return `"undefined"`
	}
}

// Equal reports value equality (not identity) between two Values, used
// by the query evaluator's eq/neq/in matching.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		// allow numeric cross-kind equality (1 == 1.0)
		af, aok := a.AsFloat64()
		bf, bok := b.AsFloat64()
		if aok && bok {
			return af == bf
		}
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindText:
		return a.s == b.s
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// ValueEq is a caller-supplied equality function over Values. ormap.Map
// does not take it: Remove uses its own Equality[V], or reflect.DeepEqual
// when none is given.
type ValueEq func(a, b Value) bool
