// Package handle tracks the lifetime of native objects.
//
// A Handle owns one native pointer and optionally points back at the Handle
// of the object it was created from. It is valid while its own pointer is
// non-null and every owner up the chain is valid. Release swaps the pointer
// to null before calling the native destructor, so the destructor runs at
// most once no matter how many goroutines or cleanups race to release it.
//
// Owning handles register a runtime cleanup that releases the pointer if the
// Handle becomes unreachable. Cleanup timing is up to the garbage collector;
// callers that need deterministic teardown call Release.
package handle

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/native"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package logger.
func SetLogger(l *zap.Logger) {
	logger = l
}

// cell is the state shared with the cleanup. It must not reference the
// Handle, or the Handle would never become unreachable.
type cell struct {
	release func(native.Ptr)
	what    string
	ptr     atomic.Uintptr
}

func (c *cell) take() native.Ptr {
	return native.Ptr(c.ptr.Swap(0))
}

// Handle is a lifetime-tracked native pointer.
type Handle struct {
	c       *cell
	owner   *Handle
	cleanup runtime.Cleanup
	tracked bool
}

// Acquire runs construct and wraps the pointer it returns. An invalid owner
// fails with invalid_parent before construct is called. construct reports
// native failures itself; a null pointer without an error is reported as a
// native construction failure.
func Acquire(owner *Handle, what string, construct func() (native.Ptr, error), release func(native.Ptr)) (*Handle, error) {
	if owner != nil && !owner.IsValid() {
		return nil, errors.InvalidParent(errors.PhaseConstruct, owner.c.what)
	}

	p, err := construct()
	if err != nil {
		return nil, err
	}
	if p.IsNull() {
		return nil, errors.NativeConstruction(what, "")
	}

	h := &Handle{
		c:     &cell{release: release, what: what},
		owner: owner,
	}
	h.c.ptr.Store(uintptr(p))
	if release != nil {
		h.cleanup = runtime.AddCleanup(h, finalize, h.c)
		h.tracked = true
	}
	return h, nil
}

// Scoped returns a borrowed view of owner. It has no destructor and is valid
// exactly while owner is.
func Scoped(owner *Handle, what string) (*Handle, error) {
	if owner == nil || !owner.IsValid() {
		parent := "owner"
		if owner != nil {
			parent = owner.c.what
		}
		return nil, errors.InvalidParent(errors.PhaseConstruct, parent)
	}
	h := &Handle{
		c:     &cell{what: what},
		owner: owner,
	}
	h.c.ptr.Store(owner.c.ptr.Load())
	return h, nil
}

func finalize(c *cell) {
	if p := c.take(); !p.IsNull() {
		Logger().Debug("releasing unreachable handle", zap.String("kind", c.what))
		c.release(p)
	}
}

// Release nulls the pointer and runs the destructor. Releasing an invalid or
// already released handle is a no-op.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	p := h.c.take()
	if p.IsNull() {
		return
	}
	if h.tracked {
		h.cleanup.Stop()
	}
	if h.c.release != nil {
		h.c.release(p)
	}
}

// IsValid reports whether the pointer and every owner pointer are non-null.
func (h *Handle) IsValid() bool {
	for cur := h; cur != nil; cur = cur.owner {
		if cur.c.ptr.Load() == 0 {
			return false
		}
	}
	return true
}

// Ptr returns the native pointer and whether the handle is valid.
func (h *Handle) Ptr() (native.Ptr, bool) {
	if h == nil {
		return 0, false
	}
	return native.Ptr(h.c.ptr.Load()), h.IsValid()
}

// Use returns the native pointer, failing with invalid_parent when the
// handle or one of its owners has been released.
func (h *Handle) Use(phase errors.Phase) (native.Ptr, error) {
	if h == nil {
		return 0, errors.InvalidParent(phase, "handle")
	}
	for cur := h; cur != nil; cur = cur.owner {
		if cur.c.ptr.Load() == 0 {
			return 0, errors.InvalidParent(phase, cur.c.what)
		}
	}
	return native.Ptr(h.c.ptr.Load()), nil
}

// Owner returns the owning handle, or nil.
func (h *Handle) Owner() *Handle { return h.owner }

// Kind returns the object kind the handle was created for.
func (h *Handle) Kind() string { return h.c.what }
