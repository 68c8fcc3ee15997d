package native

import (
	"context"

	"github.com/wippyai/wasmbind/value"
)

// ABI is the native runtime surface. Methods returning an error Ptr report
// failure through it; the caller must delete every non-null error or trap it
// receives.
//
// Call contract: when FuncCall or InstanceNew returns a non-null trap or
// error, results are left untouched. When both are null, results are written.
type ABI interface {
	EngineNew(cfg EngineConfig) (engine, err Ptr)
	EngineDelete(engine Ptr)
	EngineIncrementEpoch(engine Ptr)

	StoreNew(engine Ptr) (store, err Ptr)
	StoreDelete(store Ptr)
	StoreSetFuel(store Ptr, fuel uint64) (err Ptr)
	StoreGetFuel(store Ptr) (fuel uint64, err Ptr)
	StoreSetEpochDeadline(store Ptr, ticks uint64)

	ModuleNew(engine Ptr, binary []byte) (module, err Ptr)
	ModuleValidate(engine Ptr, binary []byte) (err Ptr)
	ModuleDelete(module Ptr)
	ModuleImports(module Ptr) []ImportType
	ModuleExports(module Ptr) []ExportType

	InstanceNew(ctx context.Context, store, module Ptr, imports []Extern) (inst Instance, trap, err Ptr)
	InstanceExportGet(store Ptr, inst Instance, name string) (Extern, bool)
	InstanceExportNth(store Ptr, inst Instance, i int) (name string, ext Extern, ok bool)

	FuncNew(store Ptr, sig value.Signature, fn HostFunc) Extern
	FuncType(store Ptr, fn Extern) (sig value.Signature, err Ptr)
	FuncCall(ctx context.Context, store Ptr, fn Extern, args, results []value.Value) (trap, err Ptr)

	MemoryData(store Ptr, mem Extern) []byte
	MemoryGrow(store Ptr, mem Extern, delta uint32) (prev uint32, err Ptr)

	GlobalType(store Ptr, g Extern) GlobalType
	GlobalGet(store Ptr, g Extern) value.Value
	GlobalSet(store Ptr, g Extern, v value.Value) (err Ptr)

	TableSize(store Ptr, t Extern) (size uint32, err Ptr)
	TableGet(store Ptr, t Extern, i uint32) (v value.Value, err Ptr)

	ErrorMessage(err Ptr) string
	ErrorDelete(err Ptr)
	TrapNew(store Ptr, msg string) Ptr
	TrapMessage(trap Ptr) string
	TrapDelete(trap Ptr)
}
