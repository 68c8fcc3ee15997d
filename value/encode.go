package value

import (
	"fmt"
	"math"

	"github.com/wippyai/wasmbind/errors"
)

// Encode converts a Go value to its natural kind.
//
// Narrow integers widen: bool, int8, int16, uint8, uint16 and int32 become
// i32; uint32, int, int64, uint and uint64 become i64. Unsigned values above
// math.MaxInt64 fail with an overflow error rather than wrapping.
func Encode(host any) (Value, error) {
	switch v := host.(type) {
	case Value:
		return v, nil
	case bool:
		if v {
			return I32(1), nil
		}
		return I32(0), nil
	case int8:
		return I32(int32(v)), nil
	case int16:
		return I32(int32(v)), nil
	case int32:
		return I32(v), nil
	case uint8:
		return I32(int32(v)), nil
	case uint16:
		return I32(int32(v)), nil
	case uint32:
		return I64(int64(v)), nil
	case int:
		return I64(int64(v)), nil
	case int64:
		return I64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return Value{}, errors.Overflow(errors.PhaseEncode, nil, v, "i64")
		}
		return I64(int64(v)), nil
	case uint64:
		if v > math.MaxInt64 {
			return Value{}, errors.Overflow(errors.PhaseEncode, nil, v, "i64")
		}
		return I64(int64(v)), nil
	case float32:
		return F32(v), nil
	case float64:
		return F64(v), nil
	case [16]byte:
		return V128(v), nil
	case ExternRef:
		return Extern(v), nil
	case Ref:
		return Func(v), nil
	case FuncReferencer:
		r, err := v.FuncRef()
		if err != nil {
			return Value{}, err
		}
		return Func(r), nil
	default:
		return Value{}, errors.Unsupported(errors.PhaseEncode, fmt.Sprintf("cannot encode %T", host))
	}
}

// KindOf returns the kind Encode would produce for host.
func KindOf(host any) (Kind, error) {
	v, err := Encode(host)
	if err != nil {
		return 0, err
	}
	return v.kind, nil
}

// EncodeAs converts a Go value to a Value of kind want.
//
// Integers are accepted for i32 and i64 when they fit: signed values must fit
// the signed range, unsigned values the unsigned 32-bit range for i32 and the
// signed range for i64. float32 widens to f64; float64 is accepted for f32
// only when exactly representable. nil is the null reference for funcref and
// externref. Anything else fails with a kind mismatch.
func EncodeAs(host any, want Kind) (Value, error) {
	if host == nil {
		if want.IsRef() {
			return Zero(want), nil
		}
		return Value{}, mismatch(errors.PhaseEncode, want, "nil")
	}

	if v, ok := host.(Value); ok {
		if v.kind != want {
			return Value{}, mismatch(errors.PhaseEncode, want, v.kind.String())
		}
		return v, nil
	}

	switch want {
	case KindI32, KindI64:
		return encodeInt(host, want)
	case KindF32:
		switch v := host.(type) {
		case float32:
			return F32(v), nil
		case float64:
			f := float32(v)
			if float64(f) != v && !math.IsNaN(v) {
				return Value{}, errors.Overflow(errors.PhaseEncode, nil, v, "f32")
			}
			return F32(f), nil
		}
	case KindF64:
		switch v := host.(type) {
		case float32:
			return F64(float64(v)), nil
		case float64:
			return F64(v), nil
		}
	case KindV128:
		if v, ok := host.([16]byte); ok {
			return V128(v), nil
		}
	case KindExternRef:
		if v, ok := host.(ExternRef); ok {
			return Extern(v), nil
		}
	case KindFuncRef:
		switch v := host.(type) {
		case Ref:
			return Func(v), nil
		case FuncReferencer:
			r, err := v.FuncRef()
			if err != nil {
				return Value{}, err
			}
			return Func(r), nil
		}
	}
	return Value{}, mismatch(errors.PhaseEncode, want, fmt.Sprintf("%T", host))
}

func encodeInt(host any, want Kind) (Value, error) {
	var (
		s        int64
		u        uint64
		unsigned bool
	)
	switch v := host.(type) {
	case bool:
		if v {
			s = 1
		}
	case int8:
		s = int64(v)
	case int16:
		s = int64(v)
	case int32:
		s = int64(v)
	case int64:
		s = v
	case int:
		s = int64(v)
	case uint8:
		u, unsigned = uint64(v), true
	case uint16:
		u, unsigned = uint64(v), true
	case uint32:
		u, unsigned = uint64(v), true
	case uint64:
		u, unsigned = v, true
	case uint:
		u, unsigned = uint64(v), true
	default:
		return Value{}, mismatch(errors.PhaseEncode, want, fmt.Sprintf("%T", host))
	}

	if want == KindI32 {
		if unsigned {
			if u > math.MaxUint32 {
				return Value{}, errors.Overflow(errors.PhaseEncode, nil, host, "i32")
			}
			return I32(int32(uint32(u))), nil
		}
		if s < math.MinInt32 || s > math.MaxInt32 {
			return Value{}, errors.Overflow(errors.PhaseEncode, nil, host, "i32")
		}
		return I32(int32(s)), nil
	}

	if unsigned {
		if u > math.MaxInt64 {
			return Value{}, errors.Overflow(errors.PhaseEncode, nil, host, "i64")
		}
		return I64(int64(u)), nil
	}
	return I64(s), nil
}

// Decode returns the Go value held by v, which must be of kind want.
// i32, i64, f32 and f64 decode to int32, int64, float32 and float64; v128 to
// [16]byte; funcref to Ref; externref to ExternRef.
func Decode(v Value, want Kind) (any, error) {
	if v.kind != want {
		return nil, mismatch(errors.PhaseDecode, want, v.kind.String())
	}
	switch want {
	case KindI32:
		n, _ := v.I32()
		return n, nil
	case KindI64:
		n, _ := v.I64()
		return n, nil
	case KindF32:
		f, _ := v.F32()
		return f, nil
	case KindF64:
		f, _ := v.F64()
		return f, nil
	case KindV128:
		b, _ := v.V128()
		return b, nil
	case KindExternRef:
		r, _ := v.ExternRef()
		return r, nil
	case KindFuncRef:
		r, _ := v.FuncRef()
		return r, nil
	}
	return nil, errors.Unsupported(errors.PhaseDecode, "kind "+want.String())
}

func mismatch(phase errors.Phase, want Kind, actual string) *errors.Error {
	return errors.KindMismatch(phase, nil, want.String(), actual)
}
