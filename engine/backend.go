package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/native"
)

// Backend is the wazero implementation of native.ABI.
type Backend struct {
	native.Messages
	engines *native.Table[*engineObj]
	stores  *native.Table[*storeObj]
	modules *native.Table[*moduleObj]
}

var _ native.ABI = (*Backend)(nil)

// New creates a wazero backend.
func New() *Backend {
	return &Backend{
		Messages: native.NewMessages(),
		engines:  native.NewTable[*engineObj](),
		stores:   native.NewTable[*storeObj](),
		modules:  native.NewTable[*moduleObj](),
	}
}

// Stats counts live native objects.
type Stats struct {
	Engines int
	Stores  int
	Modules int
	Errors  int
	Traps   int
}

// Live returns the number of native objects not yet deleted.
func (b *Backend) Live() Stats {
	return Stats{
		Engines: b.engines.Live(),
		Stores:  b.stores.Live(),
		Modules: b.modules.Live(),
		Errors:  b.LiveErrors(),
		Traps:   b.LiveTraps(),
	}
}

type engineObj struct {
	cfg       native.EngineConfig
	rtConfig  wazero.RuntimeConfig
	cache     wazero.CompilationCache
	validator wazero.Runtime
	stores    map[*storeObj]struct{}
	epoch     atomic.Uint64
	mu        sync.Mutex
	deleted   bool
}

// EngineNew implements native.ABI.
func (b *Backend) EngineNew(cfg native.EngineConfig) (native.Ptr, native.Ptr) {
	if cfg.ConsumeFuel {
		return 0, b.ErrorNew("wazero: fuel metering is not supported")
	}

	var rtConfig wazero.RuntimeConfig
	if cfg.Interpreter {
		rtConfig = wazero.NewRuntimeConfigInterpreter()
	} else {
		rtConfig = wazero.NewRuntimeConfig()
	}
	if cfg.MemoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		rtConfig = rtConfig.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	if cfg.CloseOnContextDone || cfg.EpochInterruption {
		rtConfig = rtConfig.WithCloseOnContextDone(true)
	}

	cache := wazero.NewCompilationCache()
	rtConfig = rtConfig.WithCompilationCache(cache)

	e := &engineObj{
		cfg:       cfg,
		rtConfig:  rtConfig,
		cache:     cache,
		validator: wazero.NewRuntimeWithConfig(context.Background(), rtConfig),
		stores:    make(map[*storeObj]struct{}),
	}
	p := b.engines.Put(e)
	Logger().Debug("engine created",
		zap.Uintptr("engine", uintptr(p)),
		zap.Bool("interpreter", cfg.Interpreter),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages))
	return p, 0
}

// EngineDelete implements native.ABI. Stores created from the engine keep
// working until they are deleted themselves.
func (b *Backend) EngineDelete(p native.Ptr) {
	e, ok := b.engines.Delete(p)
	if !ok {
		return
	}
	ctx := context.Background()
	_ = e.validator.Close(ctx)

	e.mu.Lock()
	e.deleted = true
	unused := len(e.stores) == 0
	e.mu.Unlock()
	if unused {
		_ = e.cache.Close(ctx)
	}
	Logger().Debug("engine deleted", zap.Uintptr("engine", uintptr(p)))
}

// EngineIncrementEpoch implements native.ABI.
func (b *Backend) EngineIncrementEpoch(p native.Ptr) {
	e, ok := b.engines.Get(p)
	if !ok {
		return
	}
	epoch := e.epoch.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()
	for st := range e.stores {
		st.interruptIfDue(epoch)
	}
}

func (e *engineObj) removeStore(st *storeObj) {
	e.mu.Lock()
	delete(e.stores, st)
	closeCache := e.deleted && len(e.stores) == 0
	e.mu.Unlock()
	if closeCache {
		_ = e.cache.Close(context.Background())
	}
}
