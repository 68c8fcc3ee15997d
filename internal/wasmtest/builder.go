// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

import (
	"github.com/wippyai/wasmbind/internal/wasmbin"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

// Opcodes used by the fixtures.
const (
	OpUnreachable  byte = 0x00
	OpCall         byte = 0x10
	OpDrop         byte = 0x1a
	OpLocalGet     byte = 0x20
	OpLocalTee     byte = 0x22
	OpGlobalGet    byte = 0x23
	OpGlobalSet    byte = 0x24
	OpI32Load      byte = 0x28
	OpI32Store     byte = 0x36
	OpI32Const     byte = 0x41
	OpI64Const     byte = 0x42
	OpI32Add       byte = 0x6a
	OpI32Sub       byte = 0x6b
	OpI32And       byte = 0x71
	OpI64Add       byte = 0x7c
	OpF32Add       byte = 0x92
	OpF64Add       byte = 0xa0
	OpI64ExtendI32 byte = 0xac
	OpEnd          byte = 0x0b
	OpLoop         byte = 0x03
	OpBr           byte = 0x0c
	blockEmpty     byte = 0x40
)

type importEntry struct {
	module, name string
	kind         native.ExternKind
	typeIdx      uint32
	global       native.GlobalType
	memory       native.Limits
}

type funcEntry struct {
	typeIdx uint32
	locals  []value.Kind
	body    []byte
}

type globalEntry struct {
	typ  native.GlobalType
	init []byte
}

type exportEntry struct {
	name  string
	kind  native.ExternKind
	index uint32
}

// Builder assembles a module section by section. Index-returning methods
// return the entity's index in its index space.
type Builder struct {
	types    []value.Signature
	imports  []importEntry
	funcs    []funcEntry
	tables   []native.TableType
	memories []native.Limits
	globals  []globalEntry
	exports  []exportEntry
	start    *uint32

	importedFuncs, importedGlobals, importedMemories int
}

func New() *Builder { return &Builder{} }

func (b *Builder) typeIndex(sig value.Signature) uint32 {
	for i, t := range b.types {
		if t.Equal(sig) {
			return uint32(i)
		}
	}
	b.types = append(b.types, sig)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import. Imports must be declared before
// any function is defined.
func (b *Builder) ImportFunc(module, name string, sig value.Signature) uint32 {
	b.imports = append(b.imports, importEntry{module: module, name: name, kind: native.ExternFunc, typeIdx: b.typeIndex(sig)})
	b.importedFuncs++
	return uint32(b.importedFuncs - 1)
}

// ImportGlobal declares a global import.
func (b *Builder) ImportGlobal(module, name string, typ native.GlobalType) uint32 {
	b.imports = append(b.imports, importEntry{module: module, name: name, kind: native.ExternGlobal, global: typ})
	b.importedGlobals++
	return uint32(b.importedGlobals - 1)
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, lim native.Limits) uint32 {
	b.imports = append(b.imports, importEntry{module: module, name: name, kind: native.ExternMemory, memory: lim})
	b.importedMemories++
	return uint32(b.importedMemories - 1)
}

// Func defines a function; body is the instruction stream without the
// final end opcode.
func (b *Builder) Func(sig value.Signature, locals []value.Kind, body ...byte) uint32 {
	b.funcs = append(b.funcs, funcEntry{typeIdx: b.typeIndex(sig), locals: locals, body: body})
	return uint32(b.importedFuncs + len(b.funcs) - 1)
}

func (b *Builder) Memory(min uint32) uint32 {
	b.memories = append(b.memories, native.Limits{Min: min})
	return uint32(b.importedMemories + len(b.memories) - 1)
}

func (b *Builder) Table(elem value.Kind, min uint32) uint32 {
	b.tables = append(b.tables, native.TableType{Elem: elem, Limits: native.Limits{Min: min}})
	return uint32(len(b.tables) - 1)
}

// Global defines a global initialized by a constant expression (without end).
func (b *Builder) Global(typ native.GlobalType, init ...byte) uint32 {
	b.globals = append(b.globals, globalEntry{typ: typ, init: init})
	return uint32(b.importedGlobals + len(b.globals) - 1)
}

func (b *Builder) Export(name string, kind native.ExternKind, index uint32) *Builder {
	b.exports = append(b.exports, exportEntry{name: name, kind: kind, index: index})
	return b
}

// Start sets the start function.
func (b *Builder) Start(fn uint32) *Builder {
	b.start = &fn
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var w wasmbin.Writer
	w.Raw([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	if len(b.types) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.types)))
		for _, t := range b.types {
			s.Byte(0x60)
			writeKinds(&s, t.Params)
			writeKinds(&s, t.Results)
		}
		w.Section(wasmbin.SectionType, s.Bytes())
	}

	if len(b.imports) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.imports)))
		for _, imp := range b.imports {
			s.Name(imp.module)
			s.Name(imp.name)
			s.Byte(wasmbin.DescOf(imp.kind))
			switch imp.kind {
			case native.ExternFunc:
				s.U32(imp.typeIdx)
			case native.ExternGlobal:
				writeGlobalType(&s, imp.global)
			case native.ExternMemory:
				writeLimits(&s, imp.memory)
			}
		}
		w.Section(wasmbin.SectionImport, s.Bytes())
	}

	if len(b.funcs) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			s.U32(f.typeIdx)
		}
		w.Section(wasmbin.SectionFunction, s.Bytes())
	}

	if len(b.tables) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.tables)))
		for _, t := range b.tables {
			s.Byte(wasmbin.TypeOf(t.Elem))
			writeLimits(&s, t.Limits)
		}
		w.Section(wasmbin.SectionTable, s.Bytes())
	}

	if len(b.memories) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.memories)))
		for _, m := range b.memories {
			writeLimits(&s, m)
		}
		w.Section(wasmbin.SectionMemory, s.Bytes())
	}

	if len(b.globals) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.globals)))
		for _, g := range b.globals {
			writeGlobalType(&s, g.typ)
			s.Raw(g.init)
			s.Byte(OpEnd)
		}
		w.Section(wasmbin.SectionGlobal, s.Bytes())
	}

	if len(b.exports) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.exports)))
		for _, e := range b.exports {
			s.Name(e.name)
			s.Byte(wasmbin.DescOf(e.kind))
			s.U32(e.index)
		}
		w.Section(wasmbin.SectionExport, s.Bytes())
	}

	if b.start != nil {
		var s wasmbin.Writer
		s.U32(*b.start)
		w.Section(wasmbin.SectionStart, s.Bytes())
	}

	if len(b.funcs) > 0 {
		var s wasmbin.Writer
		s.U32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body wasmbin.Writer
			body.U32(uint32(len(f.locals)))
			for _, k := range f.locals {
				body.U32(1)
				body.Byte(wasmbin.TypeOf(k))
			}
			body.Raw(f.body)
			body.Byte(OpEnd)
			s.U32(uint32(len(body.Bytes())))
			s.Raw(body.Bytes())
		}
		w.Section(wasmbin.SectionCode, s.Bytes())
	}

	return w.Bytes()
}

func writeKinds(w *wasmbin.Writer, kinds []value.Kind) {
	w.U32(uint32(len(kinds)))
	for _, k := range kinds {
		w.Byte(wasmbin.TypeOf(k))
	}
}

func writeLimits(w *wasmbin.Writer, lim native.Limits) {
	if lim.HasMax {
		w.Byte(0x01)
		w.U32(lim.Min)
		w.U32(lim.Max)
		return
	}
	w.Byte(0x00)
	w.U32(lim.Min)
}

func writeGlobalType(w *wasmbin.Writer, g native.GlobalType) {
	w.Byte(wasmbin.TypeOf(g.Kind))
	if g.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

// I32Const encodes an i32.const instruction.
func I32Const(v int32) []byte {
	var w wasmbin.Writer
	w.Byte(OpI32Const)
	w.S64(int64(v))
	return w.Bytes()
}

// I64Const encodes an i64.const instruction.
func I64Const(v int64) []byte {
	var w wasmbin.Writer
	w.Byte(OpI64Const)
	w.S64(v)
	return w.Bytes()
}
