package value

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Ref is a function reference: an index into the store-scoped function space
// of the store identified by Store. The zero Ref is null.
type Ref struct {
	Store uint64
	Index uint64
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool { return r.Store == 0 }

// ExternRef is an opaque host reference id. Zero is null.
type ExternRef uint64

// FuncReferencer is implemented by function handles that can be passed as
// funcref arguments. FuncRef fails when the handle is no longer valid.
type FuncReferencer interface {
	FuncRef() (Ref, error)
}

// Value is the tagged union passed across the native boundary.
// lo and hi hold the payload: scalars use lo only, v128 uses both
// little-endian halves, funcref stores (Store, Index).
type Value struct {
	kind Kind
	lo   uint64
	hi   uint64
}

func I32(v int32) Value   { return Value{kind: KindI32, lo: uint64(uint32(v))} }
func I64(v int64) Value   { return Value{kind: KindI64, lo: uint64(v)} }
func F32(v float32) Value { return Value{kind: KindF32, lo: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{kind: KindF64, lo: math.Float64bits(v)} }

func V128(b [16]byte) Value {
	return Value{
		kind: KindV128,
		lo:   binary.LittleEndian.Uint64(b[:8]),
		hi:   binary.LittleEndian.Uint64(b[8:]),
	}
}

func Extern(r ExternRef) Value { return Value{kind: KindExternRef, lo: uint64(r)} }
func Func(r Ref) Value         { return Value{kind: KindFuncRef, lo: r.Store, hi: r.Index} }

// FromBits rebuilds a Value from its raw payload. Backends use it to turn
// native slots back into tagged values.
func FromBits(k Kind, lo, hi uint64) Value {
	switch k {
	case KindI32:
		lo = uint64(uint32(lo))
		hi = 0
	case KindI64, KindF64, KindExternRef:
		hi = 0
	case KindF32:
		lo = uint64(uint32(lo))
		hi = 0
	}
	return Value{kind: k, lo: lo, hi: hi}
}

// Zero returns the zero value of k. Reference kinds are null.
func Zero(k Kind) Value {
	return Value{kind: k}
}

func (v Value) Kind() Kind { return v.kind }

// Bits returns the raw payload words.
func (v Value) Bits() (lo, hi uint64) { return v.lo, v.hi }

func (v Value) I32() (int32, bool)   { return int32(uint32(v.lo)), v.kind == KindI32 }
func (v Value) I64() (int64, bool)   { return int64(v.lo), v.kind == KindI64 }
func (v Value) F32() (float32, bool) { return math.Float32frombits(uint32(v.lo)), v.kind == KindF32 }
func (v Value) F64() (float64, bool) { return math.Float64frombits(v.lo), v.kind == KindF64 }

func (v Value) V128() ([16]byte, bool) {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], v.lo)
	binary.LittleEndian.PutUint64(b[8:], v.hi)
	return b, v.kind == KindV128
}

func (v Value) ExternRef() (ExternRef, bool) { return ExternRef(v.lo), v.kind == KindExternRef }
func (v Value) FuncRef() (Ref, bool)         { return Ref{Store: v.lo, Index: v.hi}, v.kind == KindFuncRef }

// IsNull reports whether v is a null reference. Scalars are never null.
func (v Value) IsNull() bool {
	switch v.kind {
	case KindExternRef:
		return v.lo == 0
	case KindFuncRef:
		return v.lo == 0
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		n, _ := v.I32()
		return fmt.Sprintf("i32:%d", n)
	case KindI64:
		n, _ := v.I64()
		return fmt.Sprintf("i64:%d", n)
	case KindF32:
		f, _ := v.F32()
		return fmt.Sprintf("f32:%g", f)
	case KindF64:
		f, _ := v.F64()
		return fmt.Sprintf("f64:%g", f)
	case KindV128:
		b, _ := v.V128()
		return fmt.Sprintf("v128:%x", b)
	case KindExternRef, KindFuncRef:
		if v.IsNull() {
			return v.kind.String() + ":null"
		}
		if v.kind == KindFuncRef {
			return fmt.Sprintf("funcref:%d/%d", v.lo, v.hi)
		}
		return fmt.Sprintf("externref:%d", v.lo)
	}
	return v.kind.String()
}
