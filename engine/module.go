package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/internal/wasmbin"
	"github.com/wippyai/wasmbind/native"
)

type moduleObj struct {
	engine  *engineObj
	scan    *wasmbin.Module
	exports []native.ExportType
	bin     []byte
}

// ModuleNew implements native.ABI. The binary is compiled once with the
// engine's validator runtime, which also warms the shared compilation cache.
func (b *Backend) ModuleNew(ep native.Ptr, bin []byte) (native.Ptr, native.Ptr) {
	e, ok := b.engines.Get(ep)
	if !ok {
		return 0, b.ErrorNew("wazero: engine is not live")
	}
	if err := validate(e, bin); err != nil {
		return 0, b.ErrorNew(err.Error())
	}

	bin = append([]byte(nil), bin...)
	scan, err := wasmbin.Scan(bin)
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}
	exports, err := scan.ExportTypes()
	if err != nil {
		return 0, b.ErrorNew(err.Error())
	}

	p := b.modules.Put(&moduleObj{engine: e, scan: scan, exports: exports, bin: bin})
	Logger().Debug("module created",
		zap.Uintptr("module", uintptr(p)),
		zap.Int("imports", len(scan.Imports)),
		zap.Int("exports", len(exports)))
	return p, 0
}

// ModuleValidate implements native.ABI.
func (b *Backend) ModuleValidate(ep native.Ptr, bin []byte) native.Ptr {
	e, ok := b.engines.Get(ep)
	if !ok {
		return b.ErrorNew("wazero: engine is not live")
	}
	if err := validate(e, bin); err != nil {
		return b.ErrorNew(err.Error())
	}
	return 0
}

func validate(e *engineObj, bin []byte) error {
	ctx := context.Background()
	compiled, err := e.validator.CompileModule(ctx, bin)
	if err != nil {
		return err
	}
	return compiled.Close(ctx)
}

// ModuleDelete implements native.ABI.
func (b *Backend) ModuleDelete(p native.Ptr) {
	if _, ok := b.modules.Delete(p); ok {
		Logger().Debug("module deleted", zap.Uintptr("module", uintptr(p)))
	}
}

// ModuleImports implements native.ABI.
func (b *Backend) ModuleImports(p native.Ptr) []native.ImportType {
	m, ok := b.modules.Get(p)
	if !ok {
		return nil
	}
	return m.scan.ImportTypes()
}

// ModuleExports implements native.ABI.
func (b *Backend) ModuleExports(p native.Ptr) []native.ExportType {
	m, ok := b.modules.Get(p)
	if !ok {
		return nil
	}
	return append([]native.ExportType(nil), m.exports...)
}
