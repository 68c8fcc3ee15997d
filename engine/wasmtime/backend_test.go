//go:build wasmtime && cgo

package wasmtime

import (
	"context"
	"testing"

	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/value"
)

func setup(t *testing.T, cfg native.EngineConfig, bin []byte) (*Backend, native.Ptr, native.Instance) {
	t.Helper()
	b := New()
	ep, errp := b.EngineNew(cfg)
	if errp != 0 {
		t.Fatalf("engine: %s", b.ErrorMessage(errp))
	}
	sp, errp := b.StoreNew(ep)
	if errp != 0 {
		t.Fatalf("store: %s", b.ErrorMessage(errp))
	}
	mp, errp := b.ModuleNew(ep, bin)
	if errp != 0 {
		t.Fatalf("module: %s", b.ErrorMessage(errp))
	}
	inst, trap, errp := b.InstanceNew(context.Background(), sp, mp, nil)
	if trap != 0 || errp != 0 {
		t.Fatalf("instance: trap=%d err=%d", trap, errp)
	}
	t.Cleanup(func() {
		b.ModuleDelete(mp)
		b.StoreDelete(sp)
		b.EngineDelete(ep)
	})
	return b, sp, inst
}

func export(t *testing.T, b *Backend, sp native.Ptr, inst native.Instance, name string) native.Extern {
	t.Helper()
	ext, ok := b.InstanceExportGet(sp, inst, name)
	if !ok {
		t.Fatalf("%s not exported", name)
	}
	return ext
}

func TestBackend_Add(t *testing.T) {
	b, sp, inst := setup(t, native.EngineConfig{}, wasmtest.Kitchen())
	add, ok := b.InstanceExportGet(sp, inst, "add")
	if !ok {
		t.Fatal("add not exported")
	}
	results := []value.Value{value.Zero(value.KindI32)}
	trap, errp := b.FuncCall(context.Background(), sp, add, []value.Value{value.I32(1), value.I32(2)}, results)
	if trap != 0 || errp != 0 {
		t.Fatalf("call failed: trap=%d err=%d", trap, errp)
	}
	if n, _ := results[0].I32(); n != 3 {
		t.Errorf("add = %d", n)
	}
}

func TestBackend_Trap(t *testing.T) {
	b, sp, inst := setup(t, native.EngineConfig{}, wasmtest.Kitchen())
	boom := export(t, b, sp, inst, "boom")
	trap, errp := b.FuncCall(context.Background(), sp, boom, nil, nil)
	if trap == 0 || errp != 0 {
		t.Fatalf("expected trap, got trap=%d err=%d", trap, errp)
	}
	b.TrapDelete(trap)
	if b.LiveTraps() != 0 {
		t.Error("trap not deleted")
	}
}

func TestBackend_FuncRefRoundTrip(t *testing.T) {
	b, sp, inst := setup(t, native.EngineConfig{}, wasmtest.Kitchen())
	idf := export(t, b, sp, inst, "idfunc")
	add := export(t, b, sp, inst, "add")

	arg := value.Func(value.Ref{Store: uint64(add.Store), Index: add.Index})
	results := []value.Value{value.Zero(value.KindFuncRef)}
	if trap, errp := b.FuncCall(context.Background(), sp, idf, []value.Value{arg}, results); trap != 0 || errp != 0 {
		t.Fatalf("idfunc failed: trap=%d err=%d", trap, errp)
	}
	ref, ok := results[0].FuncRef()
	if !ok || ref.IsNull() {
		t.Fatalf("result = %v", results[0])
	}

	back := native.Extern{Kind: native.ExternFunc, Store: native.Ptr(ref.Store), Index: ref.Index}
	out := []value.Value{value.Zero(value.KindI32)}
	if trap, errp := b.FuncCall(context.Background(), sp, back, []value.Value{value.I32(4), value.I32(5)}, out); trap != 0 || errp != 0 {
		t.Fatalf("call through funcref failed")
	}
	if n, _ := out[0].I32(); n != 9 {
		t.Errorf("add via funcref = %d", n)
	}
}

func TestBackend_Fuel(t *testing.T) {
	b, sp, _ := setup(t, native.EngineConfig{ConsumeFuel: true}, wasmtest.Add())
	if errp := b.StoreSetFuel(sp, 1000); errp != 0 {
		t.Fatalf("set fuel: %s", b.ErrorMessage(errp))
	}
	fuel, errp := b.StoreGetFuel(sp)
	if errp != 0 || fuel != 1000 {
		t.Errorf("fuel = %d", fuel)
	}
}

func TestBackend_InterpreterRejected(t *testing.T) {
	b := New()
	_, errp := b.EngineNew(native.EngineConfig{Interpreter: true})
	if errp == 0 {
		t.Fatal("interpreter accepted")
	}
	b.ErrorDelete(errp)
}
