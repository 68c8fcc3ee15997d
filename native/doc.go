// Package native defines the C-style ABI the binding is built on.
//
// The ABI mirrors the wasm C API: opaque pointers for engines, stores, modules,
// errors and traps; store-scoped objects (instances, functions, memories,
// globals, tables) addressed by a (store, index) pair; and value.Value as the
// tagged-union value struct. Constructors return a null Ptr together with an
// error pointer on failure. Error and trap pointers are owned by the caller,
// who reads their message and deletes them.
//
// Backends live in engine (wazero) and engine/wasmtime. Table is the pointer
// arena backends allocate their objects from.
package native
