// Package value implements the tagged dynamic value model shared by the
// decoder, the bytecode VM, and the wire codec.
//
// A Value is a small tagged union, not a class hierarchy: Null, Int, Float,
// String are immutable primitives carried by value; Pair is an immutable
// 2-tuple; Cons and Map are mutable and allocated from an Arena, which hands
// back a cheap integer handle instead of a raw pointer so cyclic structures
// (via CONS_SETCDR) can't be built outside the arena's bookkeeping. See
// Arena in arena.go.
package value

import "fmt"

// Kind is the tag discriminating a Value's variant.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindPair
	KindCons
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindPair:
		return "pair"
	case KindCons:
		return "cons"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// pairData holds the two immutable slots of a Pair. Pairs can't be mutated
// once built, so unlike Cons/Map they need no arena indirection or cycle
// bookkeeping.
type pairData struct {
	first, second Value
}

// Value is the universal dynamic value. The zero Value is Null.
type Value struct {
	kind Kind

	i int32
	f float32
	s string

	pair *pairData

	// Cons/Map identity: handle indexes into owner's cell table.
	handle uint32
	owner  *Arena
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// Int returns an Int value.
func Int(i int32) Value { return Value{kind: KindInt, i: i} }

// Float returns a Float value.
func Float(f float32) Value { return Value{kind: KindFloat, f: f} }

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Pair returns an immutable Pair of two values.
func Pair(first, second Value) Value {
	return Value{kind: KindPair, pair: &pairData{first: first, second: second}}
}

// Tag returns the Kind of v.
func Tag(v Value) Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsPrimitive reports whether v is Null, Int, Float, or String.
func (v Value) IsPrimitive() bool {
	switch v.kind {
	case KindNull, KindInt, KindFloat, KindString:
		return true
	default:
		return false
	}
}

// IntValue returns the underlying int32. Panics if v is not an Int.
func (v Value) IntValue() int32 {
	if v.kind != KindInt {
		panic(fmt.Sprintf("value: IntValue on %s", v.kind))
	}
	return v.i
}

// FloatValue returns the underlying float32. Panics if v is not a Float.
func (v Value) FloatValue() float32 {
	if v.kind != KindFloat {
		panic(fmt.Sprintf("value: FloatValue on %s", v.kind))
	}
	return v.f
}

// StringValue returns the underlying string. Panics if v is not a String.
func (v Value) StringValue() string {
	if v.kind != KindString {
		panic(fmt.Sprintf("value: StringValue on %s", v.kind))
	}
	return v.s
}

// PairFirst returns the first slot of a Pair. Panics if v is not a Pair.
func (v Value) PairFirst() Value {
	if v.kind != KindPair {
		panic(fmt.Sprintf("value: PairFirst on %s", v.kind))
	}
	return v.pair.first
}

// PairSecond returns the second slot of a Pair. Panics if v is not a Pair.
func (v Value) PairSecond() Value {
	if v.kind != KindPair {
		panic(fmt.Sprintf("value: PairSecond on %s", v.kind))
	}
	return v.pair.second
}

// Eq implements primitive structural equality, as used by Map key lookup
// and the VM's BEQ opcode. Per spec, compound equality (Pair/Cons/Map) is
// not required; two compound values are never equal here, even the same
// handle, matching the original implementation's assert-on-primitive-only
// contract.
func Eq(u, v Value) bool {
	if u.kind != v.kind {
		return false
	}
	switch u.kind {
	case KindNull:
		return true
	case KindInt:
		return u.i == v.i
	case KindFloat:
		return u.f == v.f
	case KindString:
		return u.s == v.s
	default:
		return false
	}
}
