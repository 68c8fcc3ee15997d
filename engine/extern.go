package engine

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// externObj is one store-scoped slot. owner and name locate exports inside
// the store runtime; host functions have no owner until linked.
type externObj struct {
	fn     api.Function
	mem    api.Memory
	global api.Global
	host   native.HostFunc
	owner  string
	name   string
	sig    value.Signature
	table  native.TableType
	gtype  native.GlobalType
	kind   native.ExternKind
}

func (st *storeObj) addExtern(sp native.Ptr, obj *externObj) native.Extern {
	st.externs = append(st.externs, obj)
	return native.Extern{Kind: obj.kind, Store: sp, Index: uint64(len(st.externs) - 1)}
}

func (st *storeObj) extern(e native.Extern) (*externObj, bool) {
	if e.Index >= uint64(len(st.externs)) {
		return nil, false
	}
	obj := st.externs[e.Index]
	return obj, obj.kind == e.Kind
}

// lookup resolves an extern of the wanted kind in store sp.
func (b *Backend) lookup(sp native.Ptr, e native.Extern, want native.ExternKind) (*storeObj, *externObj, native.Ptr) {
	st, errp := b.store(sp)
	if errp != 0 {
		return nil, nil, errp
	}
	if e.Store != sp {
		return nil, nil, b.ErrorNew("wazero: extern belongs to another store")
	}
	obj, ok := st.extern(e)
	if !ok || obj.kind != want {
		return nil, nil, b.ErrorNew(fmt.Sprintf("wazero: extern is not a live %s", want))
	}
	return st, obj, 0
}

// MemoryData implements native.ABI. The slice aliases guest memory and is
// invalidated by growth.
func (b *Backend) MemoryData(sp native.Ptr, e native.Extern) []byte {
	_, obj, errp := b.lookup(sp, e, native.ExternMemory)
	if errp != 0 {
		b.ErrorDelete(errp)
		return nil
	}
	if obj.mem == nil {
		return nil
	}
	data, _ := obj.mem.Read(0, obj.mem.Size())
	return data
}

// MemoryGrow implements native.ABI.
func (b *Backend) MemoryGrow(sp native.Ptr, e native.Extern, delta uint32) (uint32, native.Ptr) {
	_, obj, errp := b.lookup(sp, e, native.ExternMemory)
	if errp != 0 {
		return 0, errp
	}
	prev, ok := obj.mem.Grow(delta)
	if !ok {
		return 0, b.ErrorNew(fmt.Sprintf("wazero: failed to grow memory by %d pages", delta))
	}
	return prev, 0
}

// GlobalType implements native.ABI.
func (b *Backend) GlobalType(sp native.Ptr, e native.Extern) native.GlobalType {
	_, obj, errp := b.lookup(sp, e, native.ExternGlobal)
	if errp != 0 {
		b.ErrorDelete(errp)
		return native.GlobalType{}
	}
	return obj.gtype
}

// GlobalGet implements native.ABI.
func (b *Backend) GlobalGet(sp native.Ptr, e native.Extern) value.Value {
	_, obj, errp := b.lookup(sp, e, native.ExternGlobal)
	if errp != 0 {
		b.ErrorDelete(errp)
		return value.Value{}
	}
	return value.FromBits(obj.gtype.Kind, obj.global.Get(), 0)
}

// GlobalSet implements native.ABI.
func (b *Backend) GlobalSet(sp native.Ptr, e native.Extern, v value.Value) native.Ptr {
	_, obj, errp := b.lookup(sp, e, native.ExternGlobal)
	if errp != 0 {
		return errp
	}
	mg, ok := obj.global.(api.MutableGlobal)
	if !obj.gtype.Mutable || !ok {
		return b.ErrorNew("wazero: global is immutable")
	}
	if v.Kind() != obj.gtype.Kind {
		return b.ErrorNew(fmt.Sprintf("wazero: global is %s, got %s", obj.gtype.Kind, v.Kind()))
	}
	lo, _ := v.Bits()
	mg.Set(lo)
	return 0
}

// TableSize implements native.ABI.
func (b *Backend) TableSize(native.Ptr, native.Extern) (uint32, native.Ptr) {
	return 0, b.ErrorNew("wazero: table access is not supported")
}

// TableGet implements native.ABI.
func (b *Backend) TableGet(native.Ptr, native.Extern, uint32) (value.Value, native.Ptr) {
	return value.Value{}, b.ErrorNew("wazero: table access is not supported")
}
