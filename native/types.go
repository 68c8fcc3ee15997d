package native

import (
	"context"

	"github.com/wippyai/wasmbind/value"
)

// Ptr is an opaque native pointer. Zero is null.
type Ptr uintptr

// IsNull reports whether p is the null pointer.
func (p Ptr) IsNull() bool { return p == 0 }

// ExternKind numbers follow wasm_externkind_t.
type ExternKind uint8

const (
	ExternFunc   ExternKind = 0
	ExternGlobal ExternKind = 1
	ExternTable  ExternKind = 2
	ExternMemory ExternKind = 3
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternGlobal:
		return "global"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	}
	return "unknown"
}

// Extern is a store-scoped object. A zero Store means null.
type Extern struct {
	Kind  ExternKind
	Store Ptr
	Index uint64
}

// IsNull reports whether e is the null extern.
func (e Extern) IsNull() bool { return e.Store == 0 }

// Instance is a store-scoped instance.
type Instance struct {
	Store Ptr
	Index uint64
}

// IsNull reports whether i is the null instance.
func (i Instance) IsNull() bool { return i.Store == 0 }

type GlobalType struct {
	Kind    value.Kind
	Mutable bool
}

type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

type TableType struct {
	Elem   value.Kind
	Limits Limits
}

// ExternType describes an import or export. Only the field matching Kind is set.
type ExternType struct {
	Kind   ExternKind
	Func   value.Signature
	Global GlobalType
	Memory Limits
	Table  TableType
}

type ImportType struct {
	Module string
	Name   string
	Type   ExternType
}

type ExportType struct {
	Name string
	Type ExternType
}

// EngineConfig is applied when an engine is created. Backends that cannot
// honour a setting fail EngineNew.
type EngineConfig struct {
	MemoryLimitPages   uint32
	EnableThreads      bool
	Interpreter        bool
	ConsumeFuel        bool
	EpochInterruption  bool
	CloseOnContextDone bool
}

// HostFunc implements a host-defined function. results is pre-sized to the
// function's result arity with zero values. A non-nil error traps the caller.
type HostFunc func(ctx context.Context, args, results []value.Value) error
