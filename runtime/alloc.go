package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind"
	"github.com/wippyai/wasmbind/errors"
)

var _ wasmbind.Allocator = (*GuestAllocator)(nil)

// GuestAllocator allocates linear memory through functions exported by the
// guest. It implements wasmbind.Allocator.
type GuestAllocator struct {
	ctx   context.Context
	store *Store
	alloc *Func
	free  *Func
}

// NewAllocator binds the allocator exports of inst. alloc must have the
// signature (size, align i32) -> i32. free, if non-empty, names a
// (ptr, size, align i32) function.
func NewAllocator(ctx context.Context, inst *Instance, alloc, free string) (*GuestAllocator, error) {
	a := &GuestAllocator{ctx: ctx, store: inst.Store()}
	var err error
	if a.alloc, err = inst.Func(alloc); err != nil {
		return nil, err
	}
	if free != "" {
		if a.free, err = inst.Func(free); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Alloc returns the address of size bytes aligned to align.
func (a *GuestAllocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseCall, "alignment must be a power of two")
	}
	res, err := a.alloc.Call(a.ctx, a.store, size, align)
	if err != nil {
		return 0, err
	}
	ptr, ok := res.(int32)
	if !ok {
		return 0, errors.KindMismatch(errors.PhaseDecode, []string{"alloc"}, "i32", "result")
	}
	if ptr == 0 {
		return 0, errors.CallError("guest allocator returned null")
	}
	return uint32(ptr), nil
}

// Free releases an allocation. Failures are logged, not returned.
func (a *GuestAllocator) Free(ptr, size, align uint32) {
	if a.free == nil {
		return
	}
	if _, err := a.free.Call(a.ctx, a.store, ptr, size, align); err != nil {
		a.store.log.Debug("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}
