package value

import "strconv"

// Kind is a WebAssembly value kind. The numbering matches the C API's
// wasm_valkind_t so backends can pass it through unchanged.
type Kind uint8

const (
	KindI32       Kind = 0
	KindI64       Kind = 1
	KindF32       Kind = 2
	KindF64       Kind = 3
	KindV128      Kind = 4
	KindExternRef Kind = 128
	KindFuncRef   Kind = 129
)

// Kinds lists every supported kind in numbering order.
var Kinds = []Kind{KindI32, KindI64, KindF32, KindF64, KindV128, KindExternRef, KindFuncRef}

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindV128:
		return "v128"
	case KindExternRef:
		return "externref"
	case KindFuncRef:
		return "funcref"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindI32, KindI64, KindF32, KindF64, KindV128, KindExternRef, KindFuncRef:
		return true
	}
	return false
}

// IsRef reports whether k is a reference kind.
func (k Kind) IsRef() bool {
	return k == KindExternRef || k == KindFuncRef
}

// ParseKind returns the kind named s ("i32", "funcref", ...).
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}
