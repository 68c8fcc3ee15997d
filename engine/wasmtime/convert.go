//go:build wasmtime && cgo

package wasmtime

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// badKind marks a wasmtime value type the binding has no kind for.
const badKind value.Kind = 255

func kind(k wasmtime.ValKind) value.Kind {
	switch k {
	case wasmtime.KindI32:
		return value.KindI32
	case wasmtime.KindI64:
		return value.KindI64
	case wasmtime.KindF32:
		return value.KindF32
	case wasmtime.KindF64:
		return value.KindF64
	case wasmtime.KindExternref:
		return value.KindExternRef
	case wasmtime.KindFuncref:
		return value.KindFuncRef
	}
	return badKind
}

func valKind(k value.Kind) (wasmtime.ValKind, error) {
	switch k {
	case value.KindI32:
		return wasmtime.KindI32, nil
	case value.KindI64:
		return wasmtime.KindI64, nil
	case value.KindF32:
		return wasmtime.KindF32, nil
	case value.KindF64:
		return wasmtime.KindF64, nil
	case value.KindExternRef:
		return wasmtime.KindExternref, nil
	case value.KindFuncRef:
		return wasmtime.KindFuncref, nil
	}
	return 0, fmt.Errorf("wasmtime: %s values are not supported", k)
}

func kinds(types []*wasmtime.ValType) []value.Kind {
	out := make([]value.Kind, len(types))
	for i, t := range types {
		out[i] = kind(t.Kind())
	}
	return out
}

func signature(ft *wasmtime.FuncType) value.Signature {
	return value.Signature{Params: kinds(ft.Params()), Results: kinds(ft.Results())}
}

func funcType(sig value.Signature) (*wasmtime.FuncType, error) {
	conv := func(ks []value.Kind) ([]*wasmtime.ValType, error) {
		out := make([]*wasmtime.ValType, len(ks))
		for i, k := range ks {
			vk, err := valKind(k)
			if err != nil {
				return nil, err
			}
			out[i] = wasmtime.NewValType(vk)
		}
		return out, nil
	}
	params, err := conv(sig.Params)
	if err != nil {
		return nil, err
	}
	results, err := conv(sig.Results)
	if err != nil {
		return nil, err
	}
	return wasmtime.NewFuncType(params, results), nil
}

func externType(t *wasmtime.ExternType) native.ExternType {
	switch {
	case t.FuncType() != nil:
		return native.ExternType{Kind: native.ExternFunc, Func: signature(t.FuncType())}
	case t.GlobalType() != nil:
		g := t.GlobalType()
		return native.ExternType{Kind: native.ExternGlobal, Global: native.GlobalType{Kind: kind(g.Content().Kind()), Mutable: g.Mutable()}}
	case t.MemoryType() != nil:
		m := t.MemoryType()
		hasMax, max := m.Maximum()
		return native.ExternType{Kind: native.ExternMemory, Memory: native.Limits{Min: uint32(m.Minimum()), Max: uint32(max), HasMax: hasMax}}
	case t.TableType() != nil:
		tt := t.TableType()
		hasMax, max := tt.Maximum()
		return native.ExternType{Kind: native.ExternTable, Table: native.TableType{
			Elem:   kind(tt.Element().Kind()),
			Limits: native.Limits{Min: tt.Minimum(), Max: max, HasMax: hasMax},
		}}
	}
	return native.ExternType{}
}

// toVals converts wire values; funcrefs must belong to this store.
func (st *storeObj) toVals(sp native.Ptr, vals []value.Value) ([]wasmtime.Val, error) {
	out := make([]wasmtime.Val, len(vals))
	for i, v := range vals {
		switch v.Kind() {
		case value.KindI32:
			n, _ := v.I32()
			out[i] = wasmtime.ValI32(n)
		case value.KindI64:
			n, _ := v.I64()
			out[i] = wasmtime.ValI64(n)
		case value.KindF32:
			f, _ := v.F32()
			out[i] = wasmtime.ValF32(f)
		case value.KindF64:
			f, _ := v.F64()
			out[i] = wasmtime.ValF64(f)
		case value.KindExternRef:
			r, _ := v.ExternRef()
			if r == 0 {
				out[i] = wasmtime.ValExternref(nil)
			} else {
				out[i] = wasmtime.ValExternref(uint64(r))
			}
		case value.KindFuncRef:
			r, _ := v.FuncRef()
			if r.IsNull() {
				out[i] = wasmtime.ValFuncref(nil)
				continue
			}
			if native.Ptr(r.Store) != sp || r.Index >= uint64(len(st.externs)) || st.externs[r.Index].fn == nil {
				return nil, fmt.Errorf("wasmtime: value %d: funcref does not belong to store", i)
			}
			out[i] = wasmtime.ValFuncref(st.externs[r.Index].fn)
		default:
			return nil, fmt.Errorf("wasmtime: value %d: %s values are not supported", i, v.Kind())
		}
	}
	return out, nil
}

func (st *storeObj) fromVal(sp native.Ptr, v wasmtime.Val) (value.Value, error) {
	switch v.Kind() {
	case wasmtime.KindI32:
		return value.I32(v.I32()), nil
	case wasmtime.KindI64:
		return value.I64(v.I64()), nil
	case wasmtime.KindF32:
		return value.F32(v.F32()), nil
	case wasmtime.KindF64:
		return value.F64(v.F64()), nil
	case wasmtime.KindExternref:
		return externref(v.Externref())
	case wasmtime.KindFuncref:
		return st.funcref(sp, v.Funcref()), nil
	}
	return value.Value{}, fmt.Errorf("wasmtime: unsupported value kind %d", v.Kind())
}

func (st *storeObj) fromVals(sp native.Ptr, want []value.Kind, vals []wasmtime.Val) ([]value.Value, error) {
	if len(vals) != len(want) {
		return nil, fmt.Errorf("wasmtime: expected %d values, got %d", len(want), len(vals))
	}
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		wv, err := st.fromVal(sp, v)
		if err != nil {
			return nil, err
		}
		out[i] = wv
	}
	return out, nil
}

// fromCall normalizes Func.Call's result: nil, a single Go value, or []Val.
func (st *storeObj) fromCall(sp native.Ptr, want []value.Kind, ret any) ([]value.Value, error) {
	switch len(want) {
	case 0:
		return nil, nil
	case 1:
		if vals, ok := ret.([]wasmtime.Val); ok {
			return st.fromVals(sp, want, vals)
		}
		v, err := st.single(sp, want[0], ret)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	}
	vals, ok := ret.([]wasmtime.Val)
	if !ok {
		return nil, fmt.Errorf("wasmtime: expected %d results, got %T", len(want), ret)
	}
	return st.fromVals(sp, want, vals)
}

func (st *storeObj) single(sp native.Ptr, want value.Kind, ret any) (value.Value, error) {
	switch want {
	case value.KindI32:
		if n, ok := ret.(int32); ok {
			return value.I32(n), nil
		}
	case value.KindI64:
		if n, ok := ret.(int64); ok {
			return value.I64(n), nil
		}
	case value.KindF32:
		if f, ok := ret.(float32); ok {
			return value.F32(f), nil
		}
	case value.KindF64:
		if f, ok := ret.(float64); ok {
			return value.F64(f), nil
		}
	case value.KindFuncRef:
		if ret == nil {
			return value.Zero(value.KindFuncRef), nil
		}
		if f, ok := ret.(*wasmtime.Func); ok {
			return st.funcref(sp, f), nil
		}
	case value.KindExternRef:
		return externref(ret)
	}
	return value.Value{}, fmt.Errorf("wasmtime: result is %T, expected %s", ret, want)
}

func (st *storeObj) funcref(sp native.Ptr, f *wasmtime.Func) value.Value {
	if f == nil {
		return value.Zero(value.KindFuncRef)
	}
	e := st.add(sp, &externObj{kind: native.ExternFunc, fn: f})
	return value.Func(value.Ref{Store: uint64(sp), Index: e.Index})
}

func externref(x any) (value.Value, error) {
	switch r := x.(type) {
	case nil:
		return value.Zero(value.KindExternRef), nil
	case uint64:
		return value.Extern(value.ExternRef(r)), nil
	}
	return value.Value{}, fmt.Errorf("wasmtime: externref holds foreign value %T", x)
}
