package runtime

import (
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/native"
)

// Module is a compiled WebAssembly module. It belongs to an engine and can
// be instantiated in any store of that engine.
type Module struct {
	engine  *Engine
	h       *handle.Handle
	imports []native.ImportType
	exports []native.ExportType
}

// NewModule compiles a binary module.
func NewModule(e *Engine, bin []byte) (*Module, error) {
	abi := e.abi
	h, err := handle.Acquire(e.h, "module", func() (native.Ptr, error) {
		ep, _ := e.h.Ptr()
		p, errp := abi.ModuleNew(ep, bin)
		return constructed(abi, "module", p, errp, abi.ModuleDelete)
	}, abi.ModuleDelete)
	if err != nil {
		e.log.Debug("module compilation failed")
		return nil, err
	}
	mp, _ := h.Ptr()
	return &Module{
		engine:  e,
		h:       h,
		imports: abi.ModuleImports(mp),
		exports: abi.ModuleExports(mp),
	}, nil
}

// ValidateModule checks that bin is a valid module for the engine without
// keeping the compiled result.
func ValidateModule(e *Engine, bin []byte) error {
	ep, err := e.h.Use(errors.PhaseConstruct)
	if err != nil {
		return err
	}
	if errp := e.abi.ModuleValidate(ep, bin); errp != 0 {
		return errors.Wrap(errors.PhaseConstruct, errors.KindInvalidInput, nil, takeError(e.abi, errp))
	}
	return nil
}

// Imports lists the module's imports in declaration order.
func (m *Module) Imports() []native.ImportType { return m.imports }

// Exports lists the module's exports in declaration order.
func (m *Module) Exports() []native.ExportType { return m.exports }

// Engine returns the engine the module was compiled for.
func (m *Module) Engine() *Engine { return m.engine }

// Close releases the compiled module. Instances created from it stay usable.
func (m *Module) Close() error {
	m.h.Release()
	return nil
}

// IsValid reports whether the module and its engine are open.
func (m *Module) IsValid() bool { return m.h.IsValid() }
