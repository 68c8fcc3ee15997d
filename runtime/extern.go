package runtime

import (
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// view is a store-scoped object. It has no destructor of its own and is
// valid exactly while its store is.
type view struct {
	store *Store
	h     *handle.Handle
	ext   native.Extern
}

func newView(s *Store, what string, ext native.Extern) (view, error) {
	h, err := s.scoped(errors.PhaseConstruct, what)
	if err != nil {
		return view{}, err
	}
	return view{store: s, h: h, ext: ext}, nil
}

// IsValid reports whether the owning store is still open.
func (v view) IsValid() bool { return v.h.IsValid() }

// Store returns the store the object belongs to.
func (v view) Store() *Store { return v.store }

func (v view) use(phase errors.Phase) (native.Ptr, error) {
	return v.h.Use(phase)
}

// Extern is an exported or importable object of any kind.
type Extern struct {
	view
	name string
}

// Kind returns the extern's kind.
func (x *Extern) Kind() native.ExternKind { return x.ext.Kind }

// Name returns the export name, or "" for externs created by the host.
func (x *Extern) Name() string { return x.name }

// Func returns the extern as a function.
func (x *Extern) Func() (*Func, bool) {
	if x.ext.Kind != native.ExternFunc {
		return nil, false
	}
	return &Func{view: x.view}, true
}

// Memory returns the extern as a memory.
func (x *Extern) Memory() (*Memory, bool) {
	if x.ext.Kind != native.ExternMemory {
		return nil, false
	}
	return &Memory{view: x.view}, true
}

// Global returns the extern as a global.
func (x *Extern) Global() (*Global, bool) {
	if x.ext.Kind != native.ExternGlobal {
		return nil, false
	}
	return &Global{view: x.view}, true
}

// Table returns the extern as a table.
func (x *Extern) Table() (*Table, bool) {
	if x.ext.Kind != native.ExternTable {
		return nil, false
	}
	return &Table{view: x.view}, true
}

// Global is a WebAssembly global variable.
type Global struct {
	view
}

// AsExtern returns the global as an importable extern.
func (g *Global) AsExtern() *Extern { return &Extern{view: g.view} }

// Type returns the global's value kind and mutability.
func (g *Global) Type() (native.GlobalType, error) {
	sp, err := g.use(errors.PhaseCall)
	if err != nil {
		return native.GlobalType{}, err
	}
	return g.store.abi().GlobalType(sp, g.ext), nil
}

// Value returns the current value as a raw wire value.
func (g *Global) Value() (value.Value, error) {
	sp, err := g.use(errors.PhaseCall)
	if err != nil {
		return value.Value{}, err
	}
	return g.store.abi().GlobalGet(sp, g.ext), nil
}

// Get returns the current value decoded to its Go form.
func (g *Global) Get() (any, error) {
	v, err := g.Value()
	if err != nil {
		return nil, err
	}
	return g.store.decode(v, v.Kind(), "global")
}

// Set encodes v against the global's kind and stores it. Immutable globals
// reject every write.
func (g *Global) Set(v any) error {
	typ, err := g.Type()
	if err != nil {
		return err
	}
	wire, err := value.EncodeAs(v, typ.Kind)
	if err != nil {
		return err
	}
	sp, _ := g.use(errors.PhaseCall)
	return nativeFailure(g.store.abi(), errors.PhaseCall, g.store.abi().GlobalSet(sp, g.ext, wire))
}

// Table is a WebAssembly table of references.
type Table struct {
	view
}

// AsExtern returns the table as an importable extern.
func (t *Table) AsExtern() *Extern { return &Extern{view: t.view} }

// Size returns the number of elements.
func (t *Table) Size() (uint32, error) {
	sp, err := t.use(errors.PhaseCall)
	if err != nil {
		return 0, err
	}
	n, errp := t.store.abi().TableSize(sp, t.ext)
	if err := nativeFailure(t.store.abi(), errors.PhaseCall, errp); err != nil {
		return 0, err
	}
	return n, nil
}

// Get returns element i decoded like a call result: funcrefs become *Func
// (nil when null) and externrefs map through the store registry.
func (t *Table) Get(i uint32) (any, error) {
	sp, err := t.use(errors.PhaseCall)
	if err != nil {
		return nil, err
	}
	v, errp := t.store.abi().TableGet(sp, t.ext, i)
	if err := nativeFailure(t.store.abi(), errors.PhaseCall, errp); err != nil {
		return nil, err
	}
	return t.store.decode(v, v.Kind(), "table")
}
