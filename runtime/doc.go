// Package runtime provides the typed object model over a native WebAssembly
// runtime.
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, _ := runtime.NewEngine()
//	defer eng.Close()
//
//	store, _ := runtime.NewStore(eng)
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
//	add, _ := inst.Func("add")
//	sum, err := add.Call(ctx, store, int32(1), 2)
//
// # Calls
//
// Func.Call checks that the store passed in is the function's own store,
// encodes every argument against the declared parameter kind, invokes the
// function and decodes the results. Guest traps return an error of kind
// trap; the function stays callable. Failures before the native call
// (closed store, wrong arity, wrong kind) never reach the runtime.
//
// # Host Functions
//
//	reg := runtime.NewHostRegistry()
//	reg.RegisterFunc("env", "double", func(ctx context.Context, x int32) (int32, error) {
//	    return x * 2, nil
//	})
//	inst, err := reg.Instantiate(ctx, store, mod)
//
// # Type Mapping
//
//	Go Type                          Wire kind
//	──────────────────────────────────────────────
//	bool, int8-int32, uint8-uint16   i32
//	uint32                           i32 or i64 (by declared kind)
//	int, int64, uint, uint64         i64
//	float32                          f32 (or f64)
//	float64                          f64 (or f32 when exact)
//	[16]byte                         v128
//	value.ExternRef                  externref
//	*Func, value.Ref                 funcref
//
// # Fuel and Epochs
//
// Config.ConsumeFuel with Store.SetFuel bounds the instructions a store may
// execute. Config.EpochInterruption with Store.SetEpochDeadline and
// Engine.IncrementEpoch interrupts long-running calls from another
// goroutine. Backends that cannot meter fuel fail engine construction.
package runtime
