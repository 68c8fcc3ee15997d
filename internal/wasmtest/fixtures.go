package wasmtest

import (
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

func sig(params, results []value.Kind) value.Signature {
	return value.Signature{Params: params, Results: results}
}

var (
	i32  = value.KindI32
	i64  = value.KindI64
	f32  = value.KindF32
	f64  = value.KindF64
	v128 = value.KindV128
	ext  = value.KindExternRef
	fref = value.KindFuncRef
)

// Add is a module exporting only add(i32, i32) -> i32.
func Add() []byte {
	b := New()
	add := b.Func(sig([]value.Kind{i32, i32}, []value.Kind{i32}), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpI32Add)
	b.Export("add", native.ExternFunc, add)
	return b.Bytes()
}

// Kitchen exports one function per value kind plus a memory, two globals
// and a table:
//
//	add(i32,i32)->i32  add64(i64,i64)->i64  addf(f64,f64)->f64  addf32(f32,f32)->f32
//	boom()  one()->i32  pair(i32)->(i32,i64)  bump()->i32
//	load(i32)->i32  store(i32,i32)  idext  idv128  idfunc  spin()
//	mem (1 page)  counter (mut i32 = 0)  answer (i64 = 42)  tab (funcref, 1)
func Kitchen() []byte {
	b := New()
	b.Export("add", native.ExternFunc, b.Func(sig([]value.Kind{i32, i32}, []value.Kind{i32}), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpI32Add))
	b.Export("add64", native.ExternFunc, b.Func(sig([]value.Kind{i64, i64}, []value.Kind{i64}), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpI64Add))
	b.Export("addf", native.ExternFunc, b.Func(sig([]value.Kind{f64, f64}, []value.Kind{f64}), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpF64Add))
	b.Export("addf32", native.ExternFunc, b.Func(sig([]value.Kind{f32, f32}, []value.Kind{f32}), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpF32Add))
	b.Export("boom", native.ExternFunc, b.Func(sig(nil, nil), nil, OpUnreachable))
	b.Export("one", native.ExternFunc, b.Func(sig(nil, []value.Kind{i32}), nil, I32Const(1)...))
	b.Export("pair", native.ExternFunc, b.Func(sig([]value.Kind{i32}, []value.Kind{i32, i64}), nil,
		OpLocalGet, 0, OpLocalGet, 0, OpI64ExtendI32))

	counter := b.Global(native.GlobalType{Kind: i32, Mutable: true}, I32Const(0)...)
	answer := b.Global(native.GlobalType{Kind: i64}, I64Const(42)...)

	bump := []byte{OpGlobalGet, byte(counter)}
	bump = append(bump, I32Const(1)...)
	bump = append(bump, OpI32Add, OpGlobalSet, byte(counter), OpGlobalGet, byte(counter))
	b.Export("bump", native.ExternFunc, b.Func(sig(nil, []value.Kind{i32}), nil, bump...))

	b.Export("load", native.ExternFunc, b.Func(sig([]value.Kind{i32}, []value.Kind{i32}), nil,
		OpLocalGet, 0, OpI32Load, 2, 0))
	b.Export("store", native.ExternFunc, b.Func(sig([]value.Kind{i32, i32}, nil), nil,
		OpLocalGet, 0, OpLocalGet, 1, OpI32Store, 2, 0))
	b.Export("idext", native.ExternFunc, b.Func(sig([]value.Kind{ext}, []value.Kind{ext}), nil, OpLocalGet, 0))
	b.Export("idv128", native.ExternFunc, b.Func(sig([]value.Kind{v128}, []value.Kind{v128}), nil, OpLocalGet, 0))
	b.Export("idfunc", native.ExternFunc, b.Func(sig([]value.Kind{fref}, []value.Kind{fref}), nil, OpLocalGet, 0))
	b.Export("spin", native.ExternFunc, b.Func(sig(nil, nil), nil, OpLoop, blockEmpty, OpBr, 0, OpEnd))

	b.Export("mem", native.ExternMemory, b.Memory(1))
	b.Export("counter", native.ExternGlobal, counter)
	b.Export("answer", native.ExternGlobal, answer)
	b.Export("tab", native.ExternTable, b.Table(fref, 1))
	return b.Bytes()
}

// Host imports env.double(i32)->i32 and exports call_double(i32)->i32 which
// forwards to it.
func Host() []byte {
	b := New()
	s := sig([]value.Kind{i32}, []value.Kind{i32})
	double := b.ImportFunc("env", "double", s)
	b.Export("call_double", native.ExternFunc, b.Func(s, nil, OpLocalGet, 0, OpCall, byte(double)))
	return b.Bytes()
}

// SharedMemory imports env.memory and exports peek(i32)->i32 reading it.
func SharedMemory() []byte {
	b := New()
	b.ImportMemory("env", "memory", native.Limits{Min: 1})
	b.Export("peek", native.ExternFunc, b.Func(sig([]value.Kind{i32}, []value.Kind{i32}), nil,
		OpLocalGet, 0, OpI32Load, 2, 0))
	return b.Bytes()
}

// Heap exports memory, a bump allocator alloc(size, align)->i32 starting at
// 1024 and a no-op free(ptr, size, align).
func Heap() []byte {
	b := New()
	heap := b.Global(native.GlobalType{Kind: i32, Mutable: true}, I32Const(1024)...)
	body := []byte{OpGlobalGet, byte(heap), OpLocalGet, 1, OpI32Add}
	body = append(body, I32Const(1)...)
	body = append(body, OpI32Sub)
	body = append(body, I32Const(0)...)
	body = append(body, OpLocalGet, 1, OpI32Sub, OpI32And,
		OpLocalTee, 2, OpLocalGet, 0, OpI32Add, OpGlobalSet, byte(heap), OpLocalGet, 2)
	b.Export("alloc", native.ExternFunc, b.Func(sig([]value.Kind{i32, i32}, []value.Kind{i32}), []value.Kind{i32}, body...))
	b.Export("free", native.ExternFunc, b.Func(sig([]value.Kind{i32, i32, i32}, nil), nil))
	b.Export("memory", native.ExternMemory, b.Memory(1))
	return b.Bytes()
}

// TrapOnStart has a start function that executes unreachable.
func TrapOnStart() []byte {
	b := New()
	start := b.Func(sig(nil, nil), nil, OpUnreachable)
	b.Start(start)
	return b.Bytes()
}

// Invalid is a binary with a valid header and a truncated section.
func Invalid() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x05, 0x01}
}
