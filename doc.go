// Package wasmbind is a lifetime-safe Go binding for WebAssembly runtimes.
//
// Native runtime objects (engines, stores, modules, instances and everything
// exported from them) are wrapped in handles that know their owner. Using an
// object after it or its owner has been closed returns an error instead of
// touching freed memory.
//
// # Architecture Overview
//
//	wasmbind/            Root package with core Memory and Allocator interfaces
//	├── runtime/         Engine, Store, Module, Instance and the typed call protocol
//	├── value/           Tagged wire values and the Go marshaller
//	├── native/          Native ABI every backend implements
//	├── engine/          wazero backend (default, pure Go)
//	│   └── wasmtime/    wasmtime backend (cgo, -tags wasmtime)
//	├── declsort/        Dependency ordering of generated Go declarations
//	├── bindgen/         C header to Go binding generator
//	├── platform/        Target platform descriptions
//	├── artifact/        Prebuilt native library manifest
//	├── errors/          Structured error types for debugging
//	└── cmd/             wasmgen and run command line tools
//
// # Quick Start
//
//	eng, err := runtime.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	store, err := runtime.NewStore(eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	mod, err := runtime.NewModule(eng, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mod.Close()
//
//	inst, err := runtime.NewInstance(ctx, store, mod)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := inst.Call(ctx, "add", int32(1), int32(2))
//	fmt.Println(result) // 3
//
// # Ownership
//
// Engine, Store and Module own native pointers and must be closed. Instances,
// functions, memories, globals and tables are views into their Store: they
// have no Close and become invalid the moment the Store is closed. Closing an
// Engine invalidates its Stores and Modules without freeing them; their own
// Close still releases them. Objects that become unreachable without being
// closed are eventually released by a runtime cleanup.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. A Store and everything
// obtained from it must be used by a single goroutine at a time.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Slices returned by
// Memory.Data alias guest memory and are invalidated by Grow.
package wasmbind
