package wasmbin

import "fmt"

// Target names where an import is satisfied from.
type Target struct {
	Module string
	Name   string
}

// RewriteImports returns a copy of the scanned binary whose import section
// points import i at targets[i]. Descriptors are kept unchanged.
func (m *Module) RewriteImports(targets []Target) ([]byte, error) {
	if len(targets) != len(m.Imports) {
		return nil, fmt.Errorf("wasmbin: %d import targets for %d imports", len(targets), len(m.Imports))
	}
	if len(m.Imports) == 0 {
		return m.bin, nil
	}

	var payload Writer
	payload.U32(uint32(len(m.Imports)))
	for i, imp := range m.Imports {
		payload.Name(targets[i].Module)
		payload.Name(targets[i].Name)
		payload.Byte(DescOf(imp.Type.Kind))
		payload.Raw(imp.Desc)
	}

	var w Writer
	w.Raw(m.bin[:m.importStart])
	w.Section(SectionImport, payload.Bytes())
	w.Raw(m.bin[m.importEnd:])
	return w.Bytes(), nil
}
