package wasmbin

import (
	"fmt"

	"github.com/wippyai/wasmbind/native"
)

// ImportTypes lists imports in declaration order.
func (m *Module) ImportTypes() []native.ImportType {
	out := make([]native.ImportType, len(m.Imports))
	for i, imp := range m.Imports {
		out[i] = native.ImportType{Module: imp.Module, Name: imp.Name, Type: imp.Type}
	}
	return out
}

// ExportTypes lists exports in declaration order with their resolved types.
func (m *Module) ExportTypes() ([]native.ExportType, error) {
	out := make([]native.ExportType, 0, len(m.Exports))
	for _, exp := range m.Exports {
		et, err := m.ExportType(exp)
		if err != nil {
			return nil, err
		}
		out = append(out, native.ExportType{Name: exp.Name, Type: et})
	}
	return out, nil
}

// ExportType resolves the type of exp through the index spaces, where
// imported entities come before defined ones.
func (m *Module) ExportType(exp Export) (native.ExternType, error) {
	idx := int(exp.Index)
	var imported []native.ExternType
	for _, imp := range m.Imports {
		if imp.Type.Kind == exp.Kind {
			imported = append(imported, imp.Type)
		}
	}
	if idx < len(imported) {
		return imported[idx], nil
	}
	idx -= len(imported)

	et := native.ExternType{Kind: exp.Kind}
	switch exp.Kind {
	case native.ExternFunc:
		if idx >= len(m.Funcs) || int(m.Funcs[idx]) >= len(m.Types) {
			break
		}
		et.Func = m.Types[m.Funcs[idx]]
		return et, nil
	case native.ExternTable:
		if idx >= len(m.Tables) {
			break
		}
		et.Table = m.Tables[idx]
		return et, nil
	case native.ExternMemory:
		if idx >= len(m.Memories) {
			break
		}
		et.Memory = m.Memories[idx]
		return et, nil
	case native.ExternGlobal:
		if idx >= len(m.Globals) {
			break
		}
		et.Global = m.Globals[idx]
		return et, nil
	}
	return et, fmt.Errorf("wasmbin: export %q: %s index %d out of range", exp.Name, exp.Kind, exp.Index)
}
