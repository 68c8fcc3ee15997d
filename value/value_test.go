package value

import (
	"errors"
	"math"
	"testing"

	werrors "github.com/wippyai/wasmbind/errors"
)

func TestRoundTrip(t *testing.T) {
	v128 := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"i32 zero", int32(0), KindI32},
		{"i32 min", int32(math.MinInt32), KindI32},
		{"i32 max", int32(math.MaxInt32), KindI32},
		{"i64 min", int64(math.MinInt64), KindI64},
		{"i64 max", int64(math.MaxInt64), KindI64},
		{"f32", float32(1.5), KindF32},
		{"f32 negative zero", float32(math.Copysign(0, -1)), KindF32},
		{"f64", math.Pi, KindF64},
		{"f64 inf", math.Inf(-1), KindF64},
		{"v128", v128, KindV128},
		{"externref", ExternRef(42), KindExternRef},
		{"funcref", Ref{Store: 7, Index: 3}, KindFuncRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if v.Kind() != tt.kind {
				t.Fatalf("Kind = %v, want %v", v.Kind(), tt.kind)
			}
			got, err := Decode(v, tt.kind)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.in {
				t.Errorf("round trip = %#v, want %#v", got, tt.in)
			}
		})
	}
}

func TestRoundTrip_NaNBits(t *testing.T) {
	nan := math.Float32frombits(0x7fc00001)
	v, _ := Encode(nan)
	got, err := Decode(v, KindF32)
	if err != nil {
		t.Fatal(err)
	}
	if math.Float32bits(got.(float32)) != 0x7fc00001 {
		t.Errorf("NaN payload not preserved: %x", math.Float32bits(got.(float32)))
	}
}

func TestDecode_KindMismatch(t *testing.T) {
	samples := map[Kind]Value{
		KindI32:       I32(1),
		KindI64:       I64(1),
		KindF32:       F32(1),
		KindF64:       F64(1),
		KindV128:      V128([16]byte{1}),
		KindExternRef: Extern(1),
		KindFuncRef:   Func(Ref{Store: 1, Index: 1}),
	}

	for have, v := range samples {
		for _, want := range Kinds {
			if want == have {
				continue
			}
			got, err := Decode(v, want)
			if err == nil {
				t.Errorf("Decode(%v, %v) = %v, want error", have, want, got)
				continue
			}
			if got != nil {
				t.Errorf("Decode(%v, %v) returned value %v alongside error", have, want, got)
			}
			var we *werrors.Error
			if !errors.As(err, &we) || we.Kind != werrors.KindKindMismatch {
				t.Fatalf("error = %v, want kind_mismatch", err)
			}
			if we.Expected != want.String() || we.Actual != have.String() {
				t.Errorf("Expected=%q Actual=%q, want %q %q", we.Expected, we.Actual, want, have)
			}
		}
	}
}

func TestEncode_Widening(t *testing.T) {
	tests := []struct {
		in   any
		kind Kind
		want any
	}{
		{true, KindI32, int32(1)},
		{false, KindI32, int32(0)},
		{int8(-5), KindI32, int32(-5)},
		{int16(-300), KindI32, int32(-300)},
		{uint8(255), KindI32, int32(255)},
		{uint16(65535), KindI32, int32(65535)},
		{uint32(math.MaxUint32), KindI64, int64(math.MaxUint32)},
		{int(-1), KindI64, int64(-1)},
		{uint(12), KindI64, int64(12)},
		{uint64(math.MaxInt64), KindI64, int64(math.MaxInt64)},
	}

	for _, tt := range tests {
		v, err := Encode(tt.in)
		if err != nil {
			t.Errorf("Encode(%T %v): %v", tt.in, tt.in, err)
			continue
		}
		if v.Kind() != tt.kind {
			t.Errorf("Encode(%T) kind = %v, want %v", tt.in, v.Kind(), tt.kind)
			continue
		}
		got, _ := Decode(v, tt.kind)
		if got != tt.want {
			t.Errorf("Encode(%T %v) = %v, want %v", tt.in, tt.in, got, tt.want)
		}
	}
}

func TestEncode_Failures(t *testing.T) {
	if _, err := Encode(uint64(math.MaxUint64)); !errors.Is(err, &werrors.Error{Kind: werrors.KindOverflow}) {
		t.Errorf("uint64 overflow: err = %v", err)
	}
	if _, err := Encode("text"); !errors.Is(err, &werrors.Error{Kind: werrors.KindUnsupported}) {
		t.Errorf("string: err = %v", err)
	}
}

type releasedFunc struct{}

func (releasedFunc) FuncRef() (Ref, error) {
	return Ref{}, werrors.InvalidParent(werrors.PhaseEncode, "func")
}

type liveFunc struct{ ref Ref }

func (f liveFunc) FuncRef() (Ref, error) { return f.ref, nil }

func TestEncode_FuncReferencer(t *testing.T) {
	v, err := Encode(liveFunc{ref: Ref{Store: 2, Index: 9}})
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := v.FuncRef(); !ok || r.Index != 9 {
		t.Errorf("FuncRef = %v, %v", r, ok)
	}

	for _, enc := range []func() (Value, error){
		func() (Value, error) { return Encode(releasedFunc{}) },
		func() (Value, error) { return EncodeAs(releasedFunc{}, KindFuncRef) },
	} {
		v, err := enc()
		if !errors.Is(err, werrors.ErrInvalidParent) {
			t.Errorf("released func: err = %v, want invalid_parent", err)
		}
		if v.IsNull() {
			t.Error("released func must not encode as null")
		}
	}
}

func TestEncodeAs(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Kind
		wantErr werrors.Kind
	}{
		{"int to i32", 7, KindI32, ""},
		{"int64 to i32 in range", int64(-7), KindI32, ""},
		{"uint32 max to i32", uint32(math.MaxUint32), KindI32, ""},
		{"int64 to i32 overflow", int64(math.MaxInt32) + 1, KindI32, werrors.KindOverflow},
		{"uint64 to i64 overflow", uint64(math.MaxUint64), KindI64, werrors.KindOverflow},
		{"int32 to i64", int32(-1), KindI64, ""},
		{"float32 to f64", float32(0.5), KindF64, ""},
		{"exact float64 to f32", 0.25, KindF32, ""},
		{"inexact float64 to f32", 0.1, KindF32, werrors.KindOverflow},
		{"float to i32", 1.0, KindI32, werrors.KindKindMismatch},
		{"int to f64", 1, KindF64, werrors.KindKindMismatch},
		{"nil to externref", nil, KindExternRef, ""},
		{"nil to funcref", nil, KindFuncRef, ""},
		{"nil to i32", nil, KindI32, werrors.KindKindMismatch},
		{"value of other kind", I64(1), KindI32, werrors.KindKindMismatch},
		{"string", "x", KindI32, werrors.KindKindMismatch},
		{"externref to funcref", ExternRef(1), KindFuncRef, werrors.KindKindMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := EncodeAs(tt.in, tt.want)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("EncodeAs: %v", err)
				}
				if v.Kind() != tt.want {
					t.Errorf("Kind = %v, want %v", v.Kind(), tt.want)
				}
				return
			}
			if !errors.Is(err, &werrors.Error{Kind: tt.wantErr}) {
				t.Errorf("err = %v, want %s", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeAs_UnsignedBitPattern(t *testing.T) {
	v, err := EncodeAs(uint32(0xFFFFFFFF), KindI32)
	if err != nil {
		t.Fatal(err)
	}
	n, _ := v.I32()
	if n != -1 {
		t.Errorf("i32 = %d, want -1", n)
	}
}

func TestZero(t *testing.T) {
	for _, k := range Kinds {
		z := Zero(k)
		if z.Kind() != k {
			t.Errorf("Zero(%v).Kind() = %v", k, z.Kind())
		}
		if k.IsRef() != z.IsNull() {
			t.Errorf("Zero(%v).IsNull() = %v", k, z.IsNull())
		}
		lo, hi := z.Bits()
		if lo != 0 || hi != 0 {
			t.Errorf("Zero(%v) has payload %x %x", k, lo, hi)
		}
	}
}

func TestFromBits(t *testing.T) {
	v := FromBits(KindI32, 0xFFFF_FFFF_0000_0005, 9)
	if n, ok := v.I32(); !ok || n != 5 {
		t.Errorf("I32 = %d, %v", n, ok)
	}
	if _, hi := v.Bits(); hi != 0 {
		t.Errorf("scalar kept hi word %x", hi)
	}

	b := [16]byte{0: 0xaa, 15: 0xbb}
	lo, hi := V128(b).Bits()
	got, _ := FromBits(KindV128, lo, hi).V128()
	if got != b {
		t.Errorf("v128 = %x, want %x", got, b)
	}
}

func TestKind(t *testing.T) {
	for _, k := range Kinds {
		if !k.Valid() {
			t.Errorf("%v not valid", k)
		}
		parsed, ok := ParseKind(k.String())
		if !ok || parsed != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), parsed, ok)
		}
	}
	if Kind(5).Valid() {
		t.Error("kind 5 should be invalid")
	}
	if Kind(5).String() != "kind(5)" {
		t.Errorf("String = %q", Kind(5).String())
	}
	if KindExternRef != 128 || KindFuncRef != 129 {
		t.Error("reference kinds must keep C API numbering")
	}
}

func TestSignature(t *testing.T) {
	s := NewSignature([]Kind{KindI32, KindI32}, []Kind{KindI32})
	if got := s.String(); got != "(i32, i32) -> (i32)" {
		t.Errorf("String = %q", got)
	}
	if !s.Equal(Signature{Params: []Kind{KindI32, KindI32}, Results: []Kind{KindI32}}) {
		t.Error("Equal should hold")
	}
	if s.Equal(Signature{Params: []Kind{KindI32}}) {
		t.Error("Equal should not hold")
	}
	if got := (Signature{}).String(); got != "() -> ()" {
		t.Errorf("empty String = %q", got)
	}
}
