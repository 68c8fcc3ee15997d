package runtime

import (
	"context"
	stderrors "errors"
	"runtime"
	"testing"
	"time"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/native"
)

type testEnv struct {
	backend *engine.Backend
	engine  *Engine
	store   *Store
}

// newTestEnv creates an engine and store on a private backend so leak
// counts are not shared between tests.
func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()
	b := engine.New()
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.Backend = b
	eng, err := NewEngineWithConfig(&c)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	store, err := NewStore(eng)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		eng.Close()
	})
	return &testEnv{backend: b, engine: eng, store: store}
}

func (e *testEnv) instantiate(t *testing.T, bin []byte, imports ...*Extern) *Instance {
	t.Helper()
	mod, err := NewModule(e.engine, bin)
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	defer mod.Close()
	inst, err := NewInstance(context.Background(), e.store, mod, imports...)
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	return inst
}

func mustEngine(t *testing.T, b native.ABI) *Engine {
	t.Helper()
	eng, err := NewEngineWithConfig(&Config{Backend: b})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func mustStore(t *testing.T, eng *Engine) *Store {
	t.Helper()
	store, err := NewStore(eng)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store
}

func mustModule(t *testing.T, eng *Engine, bin []byte) *Module {
	t.Helper()
	mod, err := NewModule(eng, bin)
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	return mod
}

func mustFunc(t *testing.T, inst *Instance, name string) *Func {
	t.Helper()
	f, err := inst.Func(name)
	if err != nil {
		t.Fatalf("func %s: %v", name, err)
	}
	return f
}

func mustMemory(t *testing.T, inst *Instance, name string) *Memory {
	t.Helper()
	m, err := inst.Memory(name)
	if err != nil {
		t.Fatalf("memory %s: %v", name, err)
	}
	return m
}

func mustGlobal(t *testing.T, inst *Instance, name string) *Global {
	t.Helper()
	g, err := inst.Global(name)
	if err != nil {
		t.Fatalf("global %s: %v", name, err)
	}
	return g
}

func TestEngine_Lifecycle(t *testing.T) {
	b := engine.New()
	eng, err := NewEngineWithConfig(&Config{Backend: b})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if !eng.IsValid() {
		t.Fatal("new engine should be valid")
	}
	eng.Close()
	eng.Close()
	if eng.IsValid() {
		t.Error("closed engine should be invalid")
	}
	if got := b.Live(); got != (engine.Stats{}) {
		t.Errorf("live objects after close: %+v", got)
	}
}

func TestEngine_FuelUnsupported(t *testing.T) {
	b := engine.New()
	_, err := NewEngineWithConfig(&Config{Backend: b, ConsumeFuel: true})
	if !stderrors.Is(err, errors.ErrNativeConstruction) {
		t.Fatalf("expected native construction error, got %v", err)
	}
	if got := b.Live(); got != (engine.Stats{}) {
		t.Errorf("native error not deleted: %+v", got)
	}
}

func TestStore_ClosedEngine(t *testing.T) {
	b := engine.New()
	eng := mustEngine(t, b)
	eng.Close()

	_, err := NewStore(eng)
	if !stderrors.Is(err, errors.ErrInvalidParent) {
		t.Fatalf("expected invalid parent, got %v", err)
	}
	if got := b.Live().Stores; got != 0 {
		t.Errorf("store constructed on closed engine: %d live", got)
	}
}

func TestEngineClose_DoesNotCascade(t *testing.T) {
	b := engine.New()
	eng := mustEngine(t, b)
	store, err := NewStore(eng)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	mod, err := NewModule(eng, wasmtest.Add())
	if err != nil {
		t.Fatalf("module: %v", err)
	}

	eng.Close()
	if store.IsValid() || mod.IsValid() {
		t.Error("children of a closed engine must report invalid")
	}
	live := b.Live()
	if live.Stores != 1 || live.Modules != 1 {
		t.Fatalf("engine close freed children: %+v", live)
	}

	store.Close()
	mod.Close()
	store.Close()
	if got := b.Live(); got != (engine.Stats{}) {
		t.Errorf("live objects: %+v", got)
	}
}

func TestModule_Invalid(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := NewModule(env.engine, wasmtest.Invalid())
	if !stderrors.Is(err, errors.ErrNativeConstruction) {
		t.Fatalf("expected native construction error, got %v", err)
	}
	if err := ValidateModule(env.engine, wasmtest.Invalid()); err == nil {
		t.Error("validate accepted an invalid module")
	}
	if err := ValidateModule(env.engine, wasmtest.Add()); err != nil {
		t.Errorf("validate: %v", err)
	}
	if got := env.backend.Live().Errors; got != 0 {
		t.Errorf("native errors leaked: %d", got)
	}
}

func TestModule_ImportsExports(t *testing.T) {
	env := newTestEnv(t, nil)
	mod, err := NewModule(env.engine, wasmtest.Host())
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	defer mod.Close()

	imports := mod.Imports()
	if len(imports) != 1 || imports[0].Module != "env" || imports[0].Name != "double" {
		t.Fatalf("imports = %+v", imports)
	}
	if imports[0].Type.Kind != native.ExternFunc {
		t.Errorf("import kind = %v", imports[0].Type.Kind)
	}
	exports := mod.Exports()
	if len(exports) != 1 || exports[0].Name != "call_double" {
		t.Errorf("exports = %+v", exports)
	}
}

func TestInstance_Exports(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, wasmtest.Kitchen())

	exports, err := inst.Exports()
	if err != nil {
		t.Fatalf("exports: %v", err)
	}
	if len(exports) != 18 {
		t.Fatalf("got %d exports, want 18", len(exports))
	}
	if exports[0].Name() != "add" || exports[0].Kind() != native.ExternFunc {
		t.Errorf("first export = %s %v", exports[0].Name(), exports[0].Kind())
	}

	if _, err := inst.Export("missing"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := inst.Func("mem"); !stderrors.Is(err, errors.ErrKindMismatch) {
		t.Errorf("expected kind mismatch, got %v", err)
	}
	if _, err := inst.Memory("mem"); err != nil {
		t.Errorf("memory: %v", err)
	}
	if _, err := inst.Table("tab"); err != nil {
		t.Errorf("table: %v", err)
	}
}

func TestInstance_StartTrap(t *testing.T) {
	env := newTestEnv(t, nil)
	mod, err := NewModule(env.engine, wasmtest.TrapOnStart())
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	defer mod.Close()

	_, err = NewInstance(context.Background(), env.store, mod)
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("expected trap, got %v", err)
	}
	if got := env.backend.Live(); got.Traps != 0 || got.Errors != 0 {
		t.Errorf("trap objects leaked: %+v", got)
	}
}

func TestInstance_ForeignEngine(t *testing.T) {
	env := newTestEnv(t, nil)
	other, err := NewEngineWithConfig(&Config{Backend: env.backend})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer other.Close()
	mod, err := NewModule(other, wasmtest.Add())
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	defer mod.Close()

	_, err = NewInstance(context.Background(), env.store, mod)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStoreClose_InvalidatesViews(t *testing.T) {
	env := newTestEnv(t, nil)
	inst := env.instantiate(t, wasmtest.Kitchen())

	add, err := inst.Func("add")
	if err != nil {
		t.Fatalf("func: %v", err)
	}
	mem := mustMemory(t, inst, "mem")
	counter := mustGlobal(t, inst, "counter")

	for _, v := range []interface{ IsValid() bool }{inst, add, mem, counter} {
		if !v.IsValid() {
			t.Fatalf("%T invalid before store close", v)
		}
	}

	env.store.Close()

	for _, v := range []interface{ IsValid() bool }{inst, add, mem, counter} {
		if v.IsValid() {
			t.Errorf("%T still valid after store close", v)
		}
	}
	if _, err := mem.Data(); !stderrors.Is(err, errors.ErrInvalidParent) {
		t.Errorf("memory data: %v", err)
	}
	if _, err := counter.Get(); !stderrors.Is(err, errors.ErrInvalidParent) {
		t.Errorf("global get: %v", err)
	}
	if _, err := inst.Exports(); !stderrors.Is(err, errors.ErrInvalidParent) {
		t.Errorf("exports: %v", err)
	}
	if mem.Size() != 0 {
		t.Error("size of a closed memory should be 0")
	}
}

func TestNoLeaks(t *testing.T) {
	b := engine.New()
	eng := mustEngine(t, b)
	store := mustStore(t, eng)
	mod, err := NewModule(eng, wasmtest.Kitchen())
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	inst, err := NewInstance(context.Background(), store, mod)
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	ctx := context.Background()
	for range 10 {
		if _, err := inst.Call(ctx, "add", int32(1), int32(2)); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := inst.Call(ctx, "boom"); err == nil {
			t.Fatal("boom did not trap")
		}
	}

	mod.Close()
	store.Close()
	eng.Close()
	if got := b.Live(); got != (engine.Stats{}) {
		t.Errorf("live objects: %+v", got)
	}
}

func TestCleanup_ReleasesUnreachableStore(t *testing.T) {
	b := engine.New()
	eng := mustEngine(t, b)
	defer eng.Close()

	func() {
		if _, err := NewStore(eng); err != nil {
			t.Fatalf("store: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for b.Live().Stores != 0 {
		if time.Now().After(deadline) {
			t.Fatal("unreachable store was never released")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEpoch_Interrupt(t *testing.T) {
	env := newTestEnv(t, &Config{EpochInterruption: true})
	inst := env.instantiate(t, wasmtest.Kitchen())
	if err := env.store.SetEpochDeadline(1); err != nil {
		t.Fatalf("deadline: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				env.engine.IncrementEpoch()
			}
		}
	}()

	_, err := inst.Call(context.Background(), "spin")
	close(done)

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTrap {
		t.Fatalf("expected trap, got %v", err)
	}
	if e.Detail != "interrupt" {
		t.Errorf("trap message = %q", e.Detail)
	}
}

func TestStore_Fuel(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.store.SetFuel(100); !stderrors.Is(err, errors.ErrCallError) {
		t.Errorf("set fuel: %v", err)
	}
	if _, err := env.store.Fuel(); err == nil {
		t.Error("fuel query should fail without metering")
	}
	if got := env.backend.Live().Errors; got != 0 {
		t.Errorf("native errors leaked: %d", got)
	}
}

// halfFailingABI reports an error from every constructor after the native
// object was already created.
type halfFailingABI struct {
	*engine.Backend
	failEngine bool
}

func (h *halfFailingABI) EngineNew(cfg native.EngineConfig) (native.Ptr, native.Ptr) {
	p, errp := h.Backend.EngineNew(cfg)
	if h.failEngine && errp == 0 {
		errp = h.ErrorNew("engine rejected")
	}
	return p, errp
}

func (h *halfFailingABI) StoreNew(engine native.Ptr) (native.Ptr, native.Ptr) {
	p, errp := h.Backend.StoreNew(engine)
	if errp == 0 {
		errp = h.ErrorNew("store rejected")
	}
	return p, errp
}

func (h *halfFailingABI) ModuleNew(engine native.Ptr, bin []byte) (native.Ptr, native.Ptr) {
	p, errp := h.Backend.ModuleNew(engine, bin)
	if errp == 0 {
		errp = h.ErrorNew("module rejected")
	}
	return p, errp
}

func TestConstructors_PointerWithError(t *testing.T) {
	b := engine.New()
	_, err := NewEngineWithConfig(&Config{Backend: &halfFailingABI{Backend: b, failEngine: true}})
	if !stderrors.Is(err, errors.ErrNativeConstruction) {
		t.Fatalf("engine: expected native construction error, got %v", err)
	}
	if got := b.Live(); got != (engine.Stats{}) {
		t.Fatalf("engine leaked: %+v", got)
	}

	b = engine.New()
	eng := mustEngine(t, &halfFailingABI{Backend: b})
	if _, err := NewStore(eng); !stderrors.Is(err, errors.ErrNativeConstruction) {
		t.Errorf("store: expected native construction error, got %v", err)
	}
	if _, err := NewModule(eng, wasmtest.Add()); !stderrors.Is(err, errors.ErrNativeConstruction) {
		t.Errorf("module: expected native construction error, got %v", err)
	}
	eng.Close()
	if got := b.Live(); got != (engine.Stats{}) {
		t.Errorf("live objects: %+v", got)
	}
}
