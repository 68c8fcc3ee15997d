package handle

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	werrors "github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
)

type counter struct {
	constructs atomic.Int32
	releases   atomic.Int32
}

func (c *counter) construct(p native.Ptr) func() (native.Ptr, error) {
	return func() (native.Ptr, error) {
		c.constructs.Add(1)
		return p, nil
	}
}

func (c *counter) release(native.Ptr) { c.releases.Add(1) }

func mustAcquire(t *testing.T, owner *Handle, what string, construct func() (native.Ptr, error), release func(native.Ptr)) *Handle {
	t.Helper()
	h, err := Acquire(owner, what, construct, release)
	if err != nil {
		t.Fatalf("acquire %s: %v", what, err)
	}
	return h
}

func TestAcquire(t *testing.T) {
	var c counter
	h, err := Acquire(nil, "engine", c.construct(1), c.release)
	if err != nil {
		t.Fatal(err)
	}
	if !h.IsValid() {
		t.Error("fresh handle should be valid")
	}
	if p, ok := h.Ptr(); !ok || p != 1 {
		t.Errorf("Ptr = %v, %v", p, ok)
	}
	if h.Kind() != "engine" {
		t.Errorf("Kind = %q", h.Kind())
	}
}

func TestAcquire_InvalidOwner(t *testing.T) {
	var c counter
	owner := mustAcquire(t, nil, "engine", c.construct(1), c.release)
	owner.Release()

	_, err := Acquire(owner, "store", c.construct(2), c.release)
	if !errors.Is(err, werrors.ErrInvalidParent) {
		t.Fatalf("err = %v, want invalid_parent", err)
	}
	if c.constructs.Load() != 1 {
		t.Error("constructor called for invalid owner")
	}
}

func TestAcquire_NativeFailure(t *testing.T) {
	_, err := Acquire(nil, "module", func() (native.Ptr, error) { return 0, nil }, nil)
	if !errors.Is(err, werrors.ErrNativeConstruction) {
		t.Errorf("null pointer: err = %v", err)
	}

	want := werrors.NativeConstruction("module", "bad magic")
	_, err = Acquire(nil, "module", func() (native.Ptr, error) { return 0, want }, nil)
	if !errors.Is(err, want) {
		t.Errorf("constructor error not propagated: %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	var c counter
	h := mustAcquire(t, nil, "store", c.construct(1), c.release)

	h.Release()
	h.Release()
	if h.IsValid() {
		t.Error("released handle should be invalid")
	}
	if n := c.releases.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
	if _, err := h.Use(werrors.PhaseCall); !errors.Is(err, werrors.ErrInvalidParent) {
		t.Errorf("Use after release: err = %v", err)
	}

	var nilHandle *Handle
	nilHandle.Release()
}

func TestRelease_Concurrent(t *testing.T) {
	var c counter
	h := mustAcquire(t, nil, "store", c.construct(1), c.release)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
	if n := c.releases.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}

func TestOwnerChain(t *testing.T) {
	var c counter
	engine := mustAcquire(t, nil, "engine", c.construct(1), c.release)
	store := mustAcquire(t, engine, "store", c.construct(2), c.release)
	inst, err := Scoped(store, "instance")
	if err != nil {
		t.Fatal(err)
	}
	fn, err := Scoped(inst, "func")
	if err != nil {
		t.Fatal(err)
	}

	if !fn.IsValid() {
		t.Fatal("view should be valid")
	}

	store.Release()
	if inst.IsValid() || fn.IsValid() {
		t.Error("views should be invalid once the store is released")
	}
	if !engine.IsValid() {
		t.Error("engine should stay valid")
	}

	fn.Release()
	if n := c.releases.Load(); n != 1 {
		t.Errorf("releases = %d, want 1", n)
	}

	if _, err := Scoped(store, "instance"); !errors.Is(err, werrors.ErrInvalidParent) {
		t.Errorf("Scoped on released owner: err = %v", err)
	}
}

func TestEngineReleaseDoesNotCascade(t *testing.T) {
	var c counter
	engine := mustAcquire(t, nil, "engine", c.construct(1), c.release)
	store := mustAcquire(t, engine, "store", c.construct(2), c.release)

	engine.Release()
	if store.IsValid() {
		t.Error("store should report invalid once its engine is released")
	}
	if c.releases.Load() != 1 {
		t.Error("engine release should not delete the store")
	}

	_, err := store.Use(werrors.PhaseCall)
	var we *werrors.Error
	if !errors.As(err, &we) || we.Kind != werrors.KindInvalidParent {
		t.Fatalf("err = %v", err)
	}

	store.Release()
	if c.releases.Load() != 2 {
		t.Error("store release should still run its destructor")
	}
}

func TestCleanupReleasesUnreachable(t *testing.T) {
	released := make(chan native.Ptr, 1)
	func() {
		_, err := Acquire(nil, "store", func() (native.Ptr, error) { return 7, nil }, func(p native.Ptr) {
			released <- p
		})
		if err != nil {
			t.Fatal(err)
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		runtime.GC()
		select {
		case p := <-released:
			if p != 7 {
				t.Errorf("released %v, want 7", p)
			}
			return
		case <-deadline:
			t.Fatal("cleanup did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReleaseStopsCleanup(t *testing.T) {
	var c counter
	h := mustAcquire(t, nil, "store", c.construct(1), c.release)
	h.Release()
	h = nil
	_ = h

	for range 3 {
		runtime.GC()
	}
	time.Sleep(10 * time.Millisecond)
	if n := c.releases.Load(); n != 1 {
		t.Errorf("destructor ran %d times, want 1", n)
	}
}
