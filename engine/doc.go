// Package engine implements the native ABI on top of wazero.
//
// The backend maps the C API object model onto wazero:
//
//	engine    - runtime configuration, a shared compilation cache and a
//	            validator runtime used to compile modules once
//	store     - one wazero.Runtime; every instance and host function of the
//	            store lives in it
//	module    - the validated binary plus its scanned import/export types
//	instance  - a named wazero module inside the store runtime
//	extern    - a store-scoped slot holding a function, memory, global or table
//
// Imports are resolved positionally. Before instantiation the import section
// is rewritten so each import names the instance (or the per-instance host
// module) that provides the extern, which lets wazero link memories, globals
// and functions across instances of one store.
//
// # Limits
//
// wazero has no fuel metering, so an engine configured with ConsumeFuel
// fails to construct. Epoch interruption is implemented by cancelling the
// call context once the deadline passes; wazero closes the interrupted
// instance, so it can not be called again. Tables are listed as exports but
// their contents are not accessible. Only null funcref values cross the
// boundary.
package engine
