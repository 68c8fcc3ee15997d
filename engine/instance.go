package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/internal/wasmbin"
	"github.com/wippyai/wasmbind/native"
)

type instanceObj struct {
	mod     api.Module
	name    string
	exports []exportRef
}

type exportRef struct {
	name string
	ext  native.Extern
}

// InstanceNew implements native.ABI. imports are matched to the module's
// imports by position.
func (b *Backend) InstanceNew(ctx context.Context, sp, mp native.Ptr, imports []native.Extern) (native.Instance, native.Ptr, native.Ptr) {
	st, errp := b.store(sp)
	if errp != 0 {
		return native.Instance{}, 0, errp
	}
	m, ok := b.modules.Get(mp)
	if !ok {
		return native.Instance{}, 0, b.ErrorNew("wazero: module is not live")
	}
	if m.engine != st.engine {
		return native.Instance{}, 0, b.ErrorNew("wazero: module and store belong to different engines")
	}
	if len(imports) != len(m.scan.Imports) {
		return native.Instance{}, 0, b.ErrorNew(fmt.Sprintf("wazero: module needs %d imports, got %d", len(m.scan.Imports), len(imports)))
	}

	hostName := fmt.Sprintf("host#%d", st.hosts)
	var host wazero.HostModuleBuilder
	targets := make([]wasmbin.Target, len(imports))
	for i, imp := range m.scan.Imports {
		ext := imports[i]
		if ext.Store != sp {
			return native.Instance{}, 0, b.ErrorNew(fmt.Sprintf("wazero: import %s.%s belongs to another store", imp.Module, imp.Name))
		}
		obj, ok := st.extern(ext)
		if !ok {
			return native.Instance{}, 0, b.ErrorNew(fmt.Sprintf("wazero: import %s.%s is not a live extern", imp.Module, imp.Name))
		}
		if obj.kind != imp.Type.Kind {
			return native.Instance{}, 0, b.ErrorNew(fmt.Sprintf("wazero: import %s.%s: expected %s, got %s", imp.Module, imp.Name, imp.Type.Kind, obj.kind))
		}

		if obj.owner != "" {
			targets[i] = wasmbin.Target{Module: obj.owner, Name: obj.name}
			continue
		}

		if host == nil {
			host = st.rt.NewHostModuleBuilder(hostName)
		}
		fname := fmt.Sprintf("f%d", i)
		params, results := apiTypes(obj.sig.Params), apiTypes(obj.sig.Results)
		host = host.NewFunctionBuilder().
			WithGoModuleFunction(hostAdapter(obj), params, results).
			Export(fname)
		targets[i] = wasmbin.Target{Module: hostName, Name: fname}
	}

	bin := m.bin
	if len(targets) > 0 {
		var err error
		if bin, err = m.scan.RewriteImports(targets); err != nil {
			return native.Instance{}, 0, b.ErrorNew(err.Error())
		}
	}

	var hostMod api.Module
	if host != nil {
		var err error
		if hostMod, err = host.Instantiate(ctx); err != nil {
			return native.Instance{}, 0, b.ErrorNew(err.Error())
		}
		st.hosts++
	}
	closeHost := func() {
		if hostMod != nil {
			_ = hostMod.Close(ctx)
		}
	}

	compiled, err := st.rt.CompileModule(ctx, bin)
	if err != nil {
		closeHost()
		return native.Instance{}, 0, b.ErrorNew(err.Error())
	}
	defer compiled.Close(ctx)

	name := fmt.Sprintf("instance#%d", len(st.instances))
	cfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()
	mod, err := st.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		closeHost()
		if isTrap(err) {
			return native.Instance{}, b.TrapNew(sp, trapMessage(ctx, err)), 0
		}
		return native.Instance{}, 0, b.ErrorNew(err.Error())
	}

	inst := &instanceObj{mod: mod, name: name}
	for _, exp := range m.exports {
		obj := &externObj{kind: exp.Type.Kind, owner: name, name: exp.Name}
		switch exp.Type.Kind {
		case native.ExternFunc:
			obj.fn = mod.ExportedFunction(exp.Name)
			obj.sig = exp.Type.Func
		case native.ExternMemory:
			obj.mem = mod.ExportedMemory(exp.Name)
		case native.ExternGlobal:
			obj.global = mod.ExportedGlobal(exp.Name)
			obj.gtype = exp.Type.Global
		case native.ExternTable:
			obj.table = exp.Type.Table
		}
		inst.exports = append(inst.exports, exportRef{name: exp.Name, ext: st.addExtern(sp, obj)})
	}
	st.instances = append(st.instances, inst)

	Logger().Debug("instance created",
		zap.Uintptr("store", uintptr(sp)),
		zap.String("name", name),
		zap.Int("exports", len(inst.exports)))
	return native.Instance{Store: sp, Index: uint64(len(st.instances) - 1)}, 0, 0
}

func (b *Backend) instance(sp native.Ptr, inst native.Instance) (*instanceObj, bool) {
	if inst.Store != sp {
		return nil, false
	}
	st, ok := b.stores.Get(sp)
	if !ok || inst.Index >= uint64(len(st.instances)) {
		return nil, false
	}
	return st.instances[inst.Index], true
}

// InstanceExportGet implements native.ABI.
func (b *Backend) InstanceExportGet(sp native.Ptr, inst native.Instance, name string) (native.Extern, bool) {
	obj, ok := b.instance(sp, inst)
	if !ok {
		return native.Extern{}, false
	}
	for _, e := range obj.exports {
		if e.name == name {
			return e.ext, true
		}
	}
	return native.Extern{}, false
}

// InstanceExportNth implements native.ABI.
func (b *Backend) InstanceExportNth(sp native.Ptr, inst native.Instance, i int) (string, native.Extern, bool) {
	obj, ok := b.instance(sp, inst)
	if !ok || i < 0 || i >= len(obj.exports) {
		return "", native.Extern{}, false
	}
	e := obj.exports[i]
	return e.name, e.ext, true
}
