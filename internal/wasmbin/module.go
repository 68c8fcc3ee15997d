// Package wasmbin scans and rewrites the parts of a WebAssembly binary the
// engine needs outside the runtime: the type, import, function, table,
// memory, global and export sections.
package wasmbin

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

const (
	Magic   = 0x6d736100
	Version = 1
)

// Section ids.
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// Value type encodings.
const (
	TypeI32       byte = 0x7f
	TypeI64       byte = 0x7e
	TypeF32       byte = 0x7d
	TypeF64       byte = 0x7c
	TypeV128      byte = 0x7b
	TypeFuncRef   byte = 0x70
	TypeExternRef byte = 0x6f
	funcTypeByte  byte = 0x60
)

// Import and export descriptor kinds. The binary order differs from
// native.ExternKind, which follows wasm_externkind_t.
const (
	DescFunc   byte = 0
	DescTable  byte = 1
	DescMemory byte = 2
	DescGlobal byte = 3
	DescTag    byte = 4
)

var ErrBadHeader = errors.New("wasmbin: bad magic or version")

// ExternKindOf maps a descriptor byte to its extern kind.
func ExternKindOf(desc byte) (native.ExternKind, bool) {
	switch desc {
	case DescFunc:
		return native.ExternFunc, true
	case DescTable:
		return native.ExternTable, true
	case DescMemory:
		return native.ExternMemory, true
	case DescGlobal:
		return native.ExternGlobal, true
	}
	return 0, false
}

// DescOf maps an extern kind to its descriptor byte.
func DescOf(k native.ExternKind) byte {
	switch k {
	case native.ExternTable:
		return DescTable
	case native.ExternMemory:
		return DescMemory
	case native.ExternGlobal:
		return DescGlobal
	}
	return DescFunc
}

// KindOf maps a value type byte to its kind.
func KindOf(t byte) (value.Kind, bool) {
	switch t {
	case TypeI32:
		return value.KindI32, true
	case TypeI64:
		return value.KindI64, true
	case TypeF32:
		return value.KindF32, true
	case TypeF64:
		return value.KindF64, true
	case TypeV128:
		return value.KindV128, true
	case TypeFuncRef:
		return value.KindFuncRef, true
	case TypeExternRef:
		return value.KindExternRef, true
	}
	return 0, false
}

// TypeOf maps a kind to its value type byte.
func TypeOf(k value.Kind) byte {
	switch k {
	case value.KindI32:
		return TypeI32
	case value.KindI64:
		return TypeI64
	case value.KindF32:
		return TypeF32
	case value.KindF64:
		return TypeF64
	case value.KindV128:
		return TypeV128
	case value.KindFuncRef:
		return TypeFuncRef
	case value.KindExternRef:
		return TypeExternRef
	}
	return 0
}

// Import is one entry of the import section. Desc holds the raw descriptor
// bytes after the kind byte so the entry can be re-emitted unchanged.
type Import struct {
	Module string
	Name   string
	Type   native.ExternType
	Desc   []byte
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  native.ExternKind
	Index uint32
}

// Module is the scanned shape of a binary.
type Module struct {
	Types    []value.Signature
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Tables   []native.TableType
	Memories []native.Limits
	Globals  []native.GlobalType
	Exports  []Export

	// importStart and importEnd bound the whole import section in bin.
	importStart, importEnd int
	bin                    []byte
}

// Scan reads the sections of bin that describe imports and exports.
// Function bodies and data are skipped.
func Scan(bin []byte) (*Module, error) {
	r := &reader{b: bin}
	hdr, err := r.bytes(8)
	if err != nil {
		return nil, ErrBadHeader
	}
	if le32(hdr[:4]) != Magic || le32(hdr[4:]) != Version {
		return nil, ErrBadHeader
	}

	m := &Module{bin: bin, importStart: -1}
	for !r.done() {
		start := r.pos
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes(int(size))
		if err != nil {
			return nil, err
		}
		sr := &reader{b: payload}

		switch id {
		case SectionType:
			err = m.scanTypes(sr)
		case SectionImport:
			m.importStart, m.importEnd = start, r.pos
			err = m.scanImports(sr)
		case SectionFunction:
			err = m.scanFuncs(sr)
		case SectionTable:
			err = m.scanTables(sr)
		case SectionMemory:
			err = m.scanMemories(sr)
		case SectionGlobal:
			err = m.scanGlobals(sr)
		case SectionExport:
			err = m.scanExports(sr)
		}
		if err != nil {
			return nil, fmt.Errorf("wasmbin: section %d: %w", id, err)
		}
	}
	return m, nil
}

func (m *Module) scanTypes(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	m.Types = make([]value.Signature, 0, n)
	for i := uint32(0); i < n; i++ {
		form, err := r.byte()
		if err != nil {
			return err
		}
		if form != funcTypeByte {
			return fmt.Errorf("type %d: unsupported form 0x%02x", i, form)
		}
		params, err := readKinds(r)
		if err != nil {
			return err
		}
		results, err := readKinds(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, value.Signature{Params: params, Results: results})
	}
	return nil
}

func readKinds(r *reader) ([]value.Kind, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	kinds := make([]value.Kind, n)
	for i := range kinds {
		t, err := r.byte()
		if err != nil {
			return nil, err
		}
		k, ok := KindOf(t)
		if !ok {
			return nil, fmt.Errorf("unknown value type 0x%02x", t)
		}
		kinds[i] = k
	}
	return kinds, nil
}

func (m *Module) scanImports(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, n)
	for i := uint32(0); i < n; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		desc, err := r.byte()
		if err != nil {
			return err
		}
		kind, ok := ExternKindOf(desc)
		if !ok {
			return fmt.Errorf("import %s.%s: unsupported descriptor kind 0x%02x", mod, name, desc)
		}
		start := r.pos
		et, err := m.readDesc(r, kind)
		if err != nil {
			return fmt.Errorf("import %s.%s: %w", mod, name, err)
		}
		m.Imports = append(m.Imports, Import{
			Module: mod,
			Name:   name,
			Type:   et,
			Desc:   r.b[start:r.pos],
		})
	}
	return nil
}

func (m *Module) readDesc(r *reader, kind native.ExternKind) (native.ExternType, error) {
	et := native.ExternType{Kind: kind}
	switch kind {
	case native.ExternFunc:
		idx, err := r.u32()
		if err != nil {
			return et, err
		}
		if int(idx) >= len(m.Types) {
			return et, fmt.Errorf("type index %d out of range", idx)
		}
		et.Func = m.Types[idx]
	case native.ExternTable:
		tt, err := readTable(r)
		if err != nil {
			return et, err
		}
		et.Table = tt
	case native.ExternMemory:
		lim, err := readLimits(r)
		if err != nil {
			return et, err
		}
		et.Memory = lim
	case native.ExternGlobal:
		gt, err := readGlobalType(r)
		if err != nil {
			return et, err
		}
		et.Global = gt
	default:
		return et, fmt.Errorf("unsupported extern kind %s", kind)
	}
	return et, nil
}

func (m *Module) scanFuncs(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, n)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.u32(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) scanTables(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		tt, err := readTable(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func (m *Module) scanMemories(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, lim)
	}
	return nil
}

func (m *Module) scanGlobals(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		if err := skipConstExpr(r); err != nil {
			return err
		}
		m.Globals = append(m.Globals, gt)
	}
	return nil
}

func (m *Module) scanExports(r *reader) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		desc, err := r.byte()
		if err != nil {
			return err
		}
		kind, ok := ExternKindOf(desc)
		if !ok {
			return fmt.Errorf("export %q: unsupported descriptor kind 0x%02x", name, desc)
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func readTable(r *reader) (native.TableType, error) {
	t, err := r.byte()
	if err != nil {
		return native.TableType{}, err
	}
	elem, ok := KindOf(t)
	if !ok || !elem.IsRef() {
		return native.TableType{}, fmt.Errorf("bad table element type 0x%02x", t)
	}
	lim, err := readLimits(r)
	if err != nil {
		return native.TableType{}, err
	}
	return native.TableType{Elem: elem, Limits: lim}, nil
}

func readLimits(r *reader) (native.Limits, error) {
	flags, err := r.byte()
	if err != nil {
		return native.Limits{}, err
	}
	min, err := r.u64()
	if err != nil {
		return native.Limits{}, err
	}
	lim := native.Limits{Min: uint32(min)}
	if flags&0x01 != 0 {
		max, err := r.u64()
		if err != nil {
			return native.Limits{}, err
		}
		lim.Max = uint32(max)
		lim.HasMax = true
	}
	return lim, nil
}

func readGlobalType(r *reader) (native.GlobalType, error) {
	t, err := r.byte()
	if err != nil {
		return native.GlobalType{}, err
	}
	k, ok := KindOf(t)
	if !ok {
		return native.GlobalType{}, fmt.Errorf("bad global type 0x%02x", t)
	}
	mut, err := r.byte()
	if err != nil {
		return native.GlobalType{}, err
	}
	return native.GlobalType{Kind: k, Mutable: mut == 1}, nil
}

// skipConstExpr skips an initializer expression up to and including its end.
func skipConstExpr(r *reader) error {
	for {
		op, err := r.byte()
		if err != nil {
			return err
		}
		switch op {
		case 0x0b: // end
			return nil
		case 0x41: // i32.const
			err = r.skipLEB(5)
		case 0x42: // i64.const
			err = r.skipLEB(10)
		case 0x43: // f32.const
			_, err = r.bytes(4)
		case 0x44: // f64.const
			_, err = r.bytes(8)
		case 0x23, 0xd2: // global.get, ref.func
			_, err = r.u32()
		case 0xd0: // ref.null
			_, err = r.byte()
		case 0xfd: // v128.const
			if _, err = r.u32(); err == nil {
				_, err = r.bytes(16)
			}
		case 0x6a, 0x6b, 0x6c, 0x7c, 0x7d, 0x7e: // extended const arithmetic
		default:
			return fmt.Errorf("unsupported opcode 0x%02x in constant expression", op)
		}
		if err != nil {
			return err
		}
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
