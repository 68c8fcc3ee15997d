package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
)

// Instance is an instantiated module. It is owned by its store and has no
// Close of its own.
type Instance struct {
	store  *Store
	module *Module
	inst   native.Instance
	view   view
	funcs  map[string]*Func
}

// NewInstance instantiates module in store. imports must match the module's
// imports in order and belong to store. A trap in the start function is
// returned as a trap error.
func NewInstance(ctx context.Context, store *Store, module *Module, imports ...*Extern) (*Instance, error) {
	sp, err := store.ptr(errors.PhaseConstruct)
	if err != nil {
		return nil, err
	}
	mp, err := module.h.Use(errors.PhaseConstruct)
	if err != nil {
		return nil, err
	}
	if module.engine != store.engine {
		return nil, errors.InvalidInput(errors.PhaseConstruct, "module was compiled by a different engine")
	}

	exts := make([]native.Extern, len(imports))
	for i, imp := range imports {
		if imp == nil {
			return nil, errors.InvalidInput(errors.PhaseLink, "nil import")
		}
		if imp.store != store {
			return nil, errors.StoreMismatch(store.ID(), imp.store.ID())
		}
		if _, err := imp.use(errors.PhaseLink); err != nil {
			return nil, err
		}
		exts[i] = imp.ext
	}

	abi := store.abi()
	inst, trap, errp := abi.InstanceNew(ctx, sp, mp, exts)
	if trap != 0 {
		msg := takeTrap(abi, trap)
		if errp != 0 {
			abi.ErrorDelete(errp)
		}
		return nil, errors.Trap(errors.PhaseConstruct, msg)
	}
	if errp != 0 {
		return nil, errors.NativeConstruction("instance", takeError(abi, errp))
	}
	if inst.IsNull() {
		return nil, errors.NativeConstruction("instance", "")
	}

	v, err := newView(store, "instance", native.Extern{Store: inst.Store, Index: inst.Index})
	if err != nil {
		return nil, err
	}
	store.log.Debug("instantiated module", zap.Int("imports", len(imports)))
	return &Instance{store: store, module: module, inst: inst, view: v, funcs: make(map[string]*Func)}, nil
}

// Store returns the owning store.
func (i *Instance) Store() *Store { return i.store }

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module { return i.module }

// IsValid reports whether the owning store is still open.
func (i *Instance) IsValid() bool { return i.view.IsValid() }

// Exports lists the instance exports in declaration order.
func (i *Instance) Exports() ([]*Extern, error) {
	sp, err := i.view.use(errors.PhaseCall)
	if err != nil {
		return nil, err
	}
	abi := i.store.abi()
	var out []*Extern
	for n := 0; ; n++ {
		name, ext, ok := abi.InstanceExportNth(sp, i.inst, n)
		if !ok {
			return out, nil
		}
		x, err := i.extern(name, ext)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
}

// Export returns the export called name.
func (i *Instance) Export(name string) (*Extern, error) {
	sp, err := i.view.use(errors.PhaseCall)
	if err != nil {
		return nil, err
	}
	ext, ok := i.store.abi().InstanceExportGet(sp, i.inst, name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	return i.extern(name, ext)
}

func (i *Instance) extern(name string, ext native.Extern) (*Extern, error) {
	v, err := newView(i.store, ext.Kind.String(), ext)
	if err != nil {
		return nil, err
	}
	return &Extern{view: v, name: name}, nil
}

func (i *Instance) exportOf(name string, want native.ExternKind) (*Extern, error) {
	x, err := i.Export(name)
	if err != nil {
		return nil, err
	}
	if x.Kind() != want {
		return nil, errors.KindMismatch(errors.PhaseCall, []string{name}, want.String(), x.Kind().String())
	}
	return x, nil
}

// Func returns the exported function called name.
func (i *Instance) Func(name string) (*Func, error) {
	if f, ok := i.funcs[name]; ok && f.IsValid() {
		return f, nil
	}
	x, err := i.exportOf(name, native.ExternFunc)
	if err != nil {
		return nil, err
	}
	f, _ := x.Func()
	i.funcs[name] = f
	return f, nil
}

// Memory returns the exported memory called name.
func (i *Instance) Memory(name string) (*Memory, error) {
	x, err := i.exportOf(name, native.ExternMemory)
	if err != nil {
		return nil, err
	}
	m, _ := x.Memory()
	return m, nil
}

// Global returns the exported global called name.
func (i *Instance) Global(name string) (*Global, error) {
	x, err := i.exportOf(name, native.ExternGlobal)
	if err != nil {
		return nil, err
	}
	g, _ := x.Global()
	return g, nil
}

// Table returns the exported table called name.
func (i *Instance) Table(name string) (*Table, error) {
	x, err := i.exportOf(name, native.ExternTable)
	if err != nil {
		return nil, err
	}
	t, _ := x.Table()
	return t, nil
}

// Call invokes the exported function called name in the instance's store.
func (i *Instance) Call(ctx context.Context, name string, args ...any) (any, error) {
	f, err := i.Func(name)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, i.store, args...)
}
