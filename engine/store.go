package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/native"
)

// errInterrupt is the cancel cause used when an epoch deadline passes.
var errInterrupt = errors.New("interrupt")

type storeObj struct {
	engine    *engineObj
	rt        wazero.Runtime
	cancel    context.CancelCauseFunc
	externs   []*externObj
	instances []*instanceObj
	deadline  uint64
	mu        sync.Mutex
	hosts     int
	armed     bool
}

// StoreNew implements native.ABI.
func (b *Backend) StoreNew(ep native.Ptr) (native.Ptr, native.Ptr) {
	e, ok := b.engines.Get(ep)
	if !ok {
		return 0, b.ErrorNew("wazero: engine is not live")
	}
	st := &storeObj{
		engine: e,
		rt:     wazero.NewRuntimeWithConfig(context.Background(), e.rtConfig),
	}

	e.mu.Lock()
	e.stores[st] = struct{}{}
	e.mu.Unlock()

	p := b.stores.Put(st)
	Logger().Debug("store created", zap.Uintptr("store", uintptr(p)))
	return p, 0
}

// StoreDelete implements native.ABI. Every instance and host module of the
// store is closed with it.
func (b *Backend) StoreDelete(p native.Ptr) {
	st, ok := b.stores.Delete(p)
	if !ok {
		return
	}
	if err := st.rt.Close(context.Background()); err != nil {
		Logger().Warn("closing store runtime", zap.Error(err))
	}
	st.externs = nil
	st.instances = nil
	st.engine.removeStore(st)
	Logger().Debug("store deleted", zap.Uintptr("store", uintptr(p)))
}

// StoreSetFuel implements native.ABI.
func (b *Backend) StoreSetFuel(native.Ptr, uint64) native.Ptr {
	return b.ErrorNew("wazero: fuel metering is not supported")
}

// StoreGetFuel implements native.ABI.
func (b *Backend) StoreGetFuel(native.Ptr) (uint64, native.Ptr) {
	return 0, b.ErrorNew("wazero: fuel metering is not supported")
}

// StoreSetEpochDeadline implements native.ABI. The deadline is ticks epochs
// after the engine's current epoch.
func (b *Backend) StoreSetEpochDeadline(p native.Ptr, ticks uint64) {
	st, ok := b.stores.Get(p)
	if !ok {
		return
	}
	st.mu.Lock()
	st.deadline = st.engine.epoch.Load() + ticks
	st.armed = true
	st.mu.Unlock()
}

// enter derives the call context. It reports false when the epoch deadline
// has already passed.
func (st *storeObj) enter(ctx context.Context) (context.Context, func(), bool) {
	if !st.engine.cfg.EpochInterruption {
		return ctx, func() {}, true
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.armed && st.engine.epoch.Load() >= st.deadline {
		return ctx, func() {}, false
	}

	ctx, cancel := context.WithCancelCause(ctx)
	st.cancel = cancel
	return ctx, func() {
		st.mu.Lock()
		st.cancel = nil
		st.mu.Unlock()
		cancel(nil)
	}, true
}

func (st *storeObj) interruptIfDue(epoch uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.armed && st.cancel != nil && epoch >= st.deadline {
		st.cancel(errInterrupt)
	}
}

func (b *Backend) store(p native.Ptr) (*storeObj, native.Ptr) {
	st, ok := b.stores.Get(p)
	if !ok {
		return nil, b.ErrorNew("wazero: store is not live")
	}
	return st, 0
}
