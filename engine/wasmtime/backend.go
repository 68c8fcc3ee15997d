//go:build wasmtime && cgo

package wasmtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bytecodealliance/wasmtime-go"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

// Backend is the wasmtime implementation of native.ABI.
type Backend struct {
	native.Messages
	engines *native.Table[*engineObj]
	stores  *native.Table[*storeObj]
	modules *native.Table[*moduleObj]
}

var _ native.ABI = (*Backend)(nil)

// New creates a wasmtime backend.
func New() *Backend {
	return &Backend{
		Messages: native.NewMessages(),
		engines:  native.NewTable[*engineObj](),
		stores:   native.NewTable[*storeObj](),
		modules:  native.NewTable[*moduleObj](),
	}
}

// Wat2Wasm converts WebAssembly text to binary.
func Wat2Wasm(wat string) ([]byte, error) {
	return wasmtime.Wat2Wasm(wat)
}

type engineObj struct {
	cfg    native.EngineConfig
	engine *wasmtime.Engine
}

type moduleObj struct {
	engine *engineObj
	module *wasmtime.Module
}

type storeObj struct {
	engine    *engineObj
	store     *wasmtime.Store
	externs   []*externObj
	instances []*instanceObj
}

type instanceObj struct {
	inst   *wasmtime.Instance
	module *wasmtime.Module
}

// externObj holds exactly one of its pointers, selected by kind.
type externObj struct {
	kind   native.ExternKind
	fn     *wasmtime.Func
	mem    *wasmtime.Memory
	global *wasmtime.Global
	table  *wasmtime.Table
}

func (x *externObj) asExtern() wasmtime.AsExtern {
	switch x.kind {
	case native.ExternFunc:
		return x.fn
	case native.ExternMemory:
		return x.mem
	case native.ExternGlobal:
		return x.global
	}
	return x.table
}

func wrap(x *wasmtime.Extern) *externObj {
	switch {
	case x.Func() != nil:
		return &externObj{kind: native.ExternFunc, fn: x.Func()}
	case x.Memory() != nil:
		return &externObj{kind: native.ExternMemory, mem: x.Memory()}
	case x.Global() != nil:
		return &externObj{kind: native.ExternGlobal, global: x.Global()}
	}
	return &externObj{kind: native.ExternTable, table: x.Table()}
}

// EngineNew implements native.ABI.
func (b *Backend) EngineNew(cfg native.EngineConfig) (native.Ptr, native.Ptr) {
	if cfg.Interpreter {
		return 0, b.ErrorNew("wasmtime: interpreter is not available")
	}
	c := wasmtime.NewConfig()
	c.SetConsumeFuel(cfg.ConsumeFuel)
	c.SetEpochInterruption(cfg.EpochInterruption)
	if cfg.EnableThreads {
		c.SetWasmThreads(true)
	}
	p := b.engines.Put(&engineObj{cfg: cfg, engine: wasmtime.NewEngineWithConfig(c)})
	Logger().Debug("engine created", zap.Uintptr("engine", uintptr(p)))
	return p, 0
}

// EngineDelete implements native.ABI. The wasmtime engine is freed by its
// finalizer once no store or module references it.
func (b *Backend) EngineDelete(p native.Ptr) {
	b.engines.Delete(p)
}

// EngineIncrementEpoch implements native.ABI.
func (b *Backend) EngineIncrementEpoch(p native.Ptr) {
	if e, ok := b.engines.Get(p); ok {
		e.engine.IncrementEpoch()
	}
}

// StoreNew implements native.ABI.
func (b *Backend) StoreNew(ep native.Ptr) (native.Ptr, native.Ptr) {
	e, ok := b.engines.Get(ep)
	if !ok {
		return 0, b.ErrorNew("wasmtime: engine is not live")
	}
	st := &storeObj{engine: e, store: wasmtime.NewStore(e.engine)}
	if e.cfg.MemoryLimitPages > 0 {
		st.store.Limiter(int64(e.cfg.MemoryLimitPages)*65536, -1, -1, -1, -1)
	}
	if e.cfg.EpochInterruption {
		// No deadline until SetEpochDeadline is called.
		st.store.SetEpochDeadline(math.MaxUint32)
	}
	return b.stores.Put(st), 0
}

// StoreDelete implements native.ABI.
func (b *Backend) StoreDelete(p native.Ptr) {
	if st, ok := b.stores.Delete(p); ok {
		st.externs = nil
		st.instances = nil
	}
}

func (b *Backend) store(p native.Ptr) (*storeObj, native.Ptr) {
	st, ok := b.stores.Get(p)
	if !ok {
		return nil, b.ErrorNew("wasmtime: store is not live")
	}
	return st, 0
}

// StoreSetFuel implements native.ABI.
func (b *Backend) StoreSetFuel(p native.Ptr, fuel uint64) native.Ptr {
	st, errp := b.store(p)
	if errp != 0 {
		return errp
	}
	remaining, err := st.store.ConsumeFuel(0)
	if err != nil {
		return b.ErrorNew(err.Error())
	}
	switch {
	case fuel > remaining:
		err = st.store.AddFuel(fuel - remaining)
	case fuel < remaining:
		_, err = st.store.ConsumeFuel(remaining - fuel)
	}
	if err != nil {
		return b.ErrorNew(err.Error())
	}
	return 0
}

// StoreGetFuel implements native.ABI.
func (b *Backend) StoreGetFuel(p native.Ptr) (uint64, native.Ptr) {
	st, errp := b.store(p)
	if errp != 0 {
		return 0, errp
	}
	remaining, err := st.store.ConsumeFuel(0)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	return remaining, 0
}

// StoreSetEpochDeadline implements native.ABI.
func (b *Backend) StoreSetEpochDeadline(p native.Ptr, ticks uint64) {
	if st, ok := b.stores.Get(p); ok {
		st.store.SetEpochDeadline(ticks)
	}
}

// ModuleNew implements native.ABI.
func (b *Backend) ModuleNew(ep native.Ptr, bin []byte) (native.Ptr, native.Ptr) {
	e, ok := b.engines.Get(ep)
	if !ok {
		return 0, b.ErrorNew("wasmtime: engine is not live")
	}
	m, err := wasmtime.NewModule(e.engine, bin)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	return b.modules.Put(&moduleObj{engine: e, module: m}), 0
}

// ModuleValidate implements native.ABI.
func (b *Backend) ModuleValidate(ep native.Ptr, bin []byte) native.Ptr {
	e, ok := b.engines.Get(ep)
	if !ok {
		return b.ErrorNew("wasmtime: engine is not live")
	}
	if err := wasmtime.ModuleValidate(e.engine, bin); err != nil {
		return b.ErrorNew(err.Error())
	}
	return 0
}

// ModuleDelete implements native.ABI.
func (b *Backend) ModuleDelete(p native.Ptr) {
	b.modules.Delete(p)
}

// ModuleImports implements native.ABI.
func (b *Backend) ModuleImports(p native.Ptr) []native.ImportType {
	m, ok := b.modules.Get(p)
	if !ok {
		return nil
	}
	imports := m.module.Imports()
	out := make([]native.ImportType, 0, len(imports))
	for _, imp := range imports {
		var name string
		if n := imp.Name(); n != nil {
			name = *n
		}
		out = append(out, native.ImportType{Module: imp.Module(), Name: name, Type: externType(imp.Type())})
	}
	return out
}

// ModuleExports implements native.ABI.
func (b *Backend) ModuleExports(p native.Ptr) []native.ExportType {
	m, ok := b.modules.Get(p)
	if !ok {
		return nil
	}
	exports := m.module.Exports()
	out := make([]native.ExportType, 0, len(exports))
	for _, exp := range exports {
		out = append(out, native.ExportType{Name: exp.Name(), Type: externType(exp.Type())})
	}
	return out
}

// InstanceNew implements native.ABI.
func (b *Backend) InstanceNew(_ context.Context, sp, mp native.Ptr, imports []native.Extern) (native.Instance, native.Ptr, native.Ptr) {
	st, errp := b.store(sp)
	if errp != 0 {
		return native.Instance{}, 0, errp
	}
	m, ok := b.modules.Get(mp)
	if !ok {
		return native.Instance{}, 0, b.ErrorNew("wasmtime: module is not live")
	}
	if m.engine != st.engine {
		return native.Instance{}, 0, b.ErrorNew("wasmtime: module and store belong to different engines")
	}

	exts := make([]wasmtime.AsExtern, len(imports))
	for i, imp := range imports {
		_, x, errp := b.extern(sp, imp)
		if errp != 0 {
			return native.Instance{}, 0, errp
		}
		if x.kind != imp.Kind {
			return native.Instance{}, 0, b.ErrorNew(fmt.Sprintf("wasmtime: import %d: expected %s, got %s", i, imp.Kind, x.kind))
		}
		exts[i] = x.asExtern()
	}

	inst, err := wasmtime.NewInstance(st.store, m.module, exts)
	if err != nil {
		var trap *wasmtime.Trap
		if errors.As(err, &trap) {
			return native.Instance{}, b.TrapNew(sp, trap.Message()), 0
		}
		return native.Instance{}, 0, b.ErrorNew(err.Error())
	}
	st.instances = append(st.instances, &instanceObj{inst: inst, module: m.module})
	return native.Instance{Store: sp, Index: uint64(len(st.instances) - 1)}, 0, 0
}

func (b *Backend) instance(sp native.Ptr, inst native.Instance) (*storeObj, *instanceObj, bool) {
	st, ok := b.stores.Get(sp)
	if !ok || inst.Store != sp || inst.Index >= uint64(len(st.instances)) {
		return nil, nil, false
	}
	return st, st.instances[inst.Index], true
}

// InstanceExportGet implements native.ABI.
func (b *Backend) InstanceExportGet(sp native.Ptr, inst native.Instance, name string) (native.Extern, bool) {
	st, in, ok := b.instance(sp, inst)
	if !ok {
		return native.Extern{}, false
	}
	x := in.inst.GetExport(st.store, name)
	if x == nil {
		return native.Extern{}, false
	}
	return st.add(sp, wrap(x)), true
}

// InstanceExportNth implements native.ABI. Instance exports follow the
// module's export order.
func (b *Backend) InstanceExportNth(sp native.Ptr, inst native.Instance, i int) (string, native.Extern, bool) {
	st, in, ok := b.instance(sp, inst)
	if !ok {
		return "", native.Extern{}, false
	}
	exports := in.module.Exports()
	if i < 0 || i >= len(exports) {
		return "", native.Extern{}, false
	}
	name := exports[i].Name()
	x := in.inst.GetExport(st.store, name)
	if x == nil {
		return "", native.Extern{}, false
	}
	return name, st.add(sp, wrap(x)), true
}

func (st *storeObj) add(sp native.Ptr, x *externObj) native.Extern {
	st.externs = append(st.externs, x)
	return native.Extern{Kind: x.kind, Store: sp, Index: uint64(len(st.externs) - 1)}
}

func (b *Backend) extern(sp native.Ptr, e native.Extern) (*storeObj, *externObj, native.Ptr) {
	st, errp := b.store(sp)
	if errp != 0 {
		return nil, nil, errp
	}
	if e.Store != sp || e.Index >= uint64(len(st.externs)) {
		return nil, nil, b.ErrorNew(fmt.Sprintf("wasmtime: %s %d does not belong to store", e.Kind, e.Index))
	}
	return st, st.externs[e.Index], 0
}

// FuncNew implements native.ABI.
func (b *Backend) FuncNew(sp native.Ptr, sig value.Signature, fn native.HostFunc) native.Extern {
	st, ok := b.stores.Get(sp)
	if !ok {
		return native.Extern{}
	}
	ft, err := funcType(sig)
	if err != nil {
		return native.Extern{}
	}
	f := wasmtime.NewFunc(st.store, ft, func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		in, err := st.fromVals(sp, sig.Params, args)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		out := make([]value.Value, len(sig.Results))
		for i, k := range sig.Results {
			out[i] = value.Zero(k)
		}
		if err := fn(context.Background(), in, out); err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		vals, err := st.toVals(sp, out)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		return vals, nil
	})
	return st.add(sp, &externObj{kind: native.ExternFunc, fn: f})
}

// FuncType implements native.ABI.
func (b *Backend) FuncType(sp native.Ptr, e native.Extern) (value.Signature, native.Ptr) {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return value.Signature{}, errp
	}
	f := x.fn
	if f == nil {
		return value.Signature{}, b.ErrorNew("wasmtime: extern is not a func")
	}
	return signature(f.Type(st.store)), 0
}

// FuncCall implements native.ABI.
func (b *Backend) FuncCall(_ context.Context, sp native.Ptr, e native.Extern, args, results []value.Value) (native.Ptr, native.Ptr) {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return 0, errp
	}
	f := x.fn
	if f == nil {
		return 0, b.ErrorNew("wasmtime: extern is not a func")
	}
	sig := signature(f.Type(st.store))
	if len(args) != len(sig.Params) || len(results) != len(sig.Results) {
		return 0, b.ErrorNew(fmt.Sprintf("wasmtime: signature %s does not match %d arguments and %d results", sig, len(args), len(results)))
	}

	vals, err := st.toVals(sp, args)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	in := make([]any, len(vals))
	for i, v := range vals {
		in[i] = v
	}

	ret, err := f.Call(st.store, in...)
	if err != nil {
		var trap *wasmtime.Trap
		if errors.As(err, &trap) {
			return b.TrapNew(sp, trap.Message()), 0
		}
		return 0, b.ErrorNew(err.Error())
	}

	out, err := st.fromCall(sp, sig.Results, ret)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	copy(results, out)
	return 0, 0
}

// MemoryData implements native.ABI.
func (b *Backend) MemoryData(sp native.Ptr, e native.Extern) []byte {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		b.ErrorDelete(errp)
		return nil
	}
	if m := x.mem; m != nil {
		return m.UnsafeData(st.store)
	}
	return nil
}

// MemoryGrow implements native.ABI.
func (b *Backend) MemoryGrow(sp native.Ptr, e native.Extern, delta uint32) (uint32, native.Ptr) {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return 0, errp
	}
	m := x.mem
	if m == nil {
		return 0, b.ErrorNew("wasmtime: extern is not a memory")
	}
	prev, err := m.Grow(st.store, uint64(delta))
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	return uint32(prev), 0
}

// GlobalType implements native.ABI.
func (b *Backend) GlobalType(sp native.Ptr, e native.Extern) native.GlobalType {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		b.ErrorDelete(errp)
		return native.GlobalType{}
	}
	g := x.global
	if g == nil {
		return native.GlobalType{}
	}
	typ := g.Type(st.store)
	return native.GlobalType{Kind: kind(typ.Content().Kind()), Mutable: typ.Mutable()}
}

// GlobalGet implements native.ABI.
func (b *Backend) GlobalGet(sp native.Ptr, e native.Extern) value.Value {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		b.ErrorDelete(errp)
		return value.Value{}
	}
	g := x.global
	if g == nil {
		return value.Value{}
	}
	v, err := st.fromVal(sp, g.Get(st.store))
	if err != nil {
		return value.Value{}
	}
	return v
}

// GlobalSet implements native.ABI.
func (b *Backend) GlobalSet(sp native.Ptr, e native.Extern, v value.Value) native.Ptr {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return errp
	}
	g := x.global
	if g == nil {
		return b.ErrorNew("wasmtime: extern is not a global")
	}
	vals, err := st.toVals(sp, []value.Value{v})
	if err != nil {
		return b.ErrorNew(err.Error())
	}
	if err := g.Set(st.store, vals[0]); err != nil {
		return b.ErrorNew(err.Error())
	}
	return 0
}

// TableSize implements native.ABI.
func (b *Backend) TableSize(sp native.Ptr, e native.Extern) (uint32, native.Ptr) {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return 0, errp
	}
	t := x.table
	if t == nil {
		return 0, b.ErrorNew("wasmtime: extern is not a table")
	}
	return t.Size(st.store), 0
}

// TableGet implements native.ABI.
func (b *Backend) TableGet(sp native.Ptr, e native.Extern, i uint32) (value.Value, native.Ptr) {
	st, x, errp := b.extern(sp, e)
	if errp != 0 {
		return value.Value{}, errp
	}
	t := x.table
	if t == nil {
		return value.Value{}, b.ErrorNew("wasmtime: extern is not a table")
	}
	val, err := t.Get(st.store, i)
	if err != nil {
		return value.Value{}, b.ErrorNew(err.Error())
	}
	v, err := st.fromVal(sp, val)
	if err != nil {
		return value.Value{}, b.ErrorNew(err.Error())
	}
	return v, 0
}
