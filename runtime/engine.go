package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/native"
)

// Engine is the compilation environment. It is safe for concurrent use and
// holds no per-instance state.
type Engine struct {
	abi native.ABI
	h   *handle.Handle
	log *zap.Logger
	cfg Config
}

// NewEngine creates an engine on the default backend.
func NewEngine() (*Engine, error) {
	return NewEngineWithConfig(nil)
}

// NewEngineWithConfig creates an engine with custom configuration.
func NewEngineWithConfig(cfg *Config) (*Engine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Backend == nil {
		c.Backend = DefaultBackend()
	}
	log := c.Logger
	if log == nil {
		log = Logger()
	}

	abi := c.Backend
	h, err := handle.Acquire(nil, "engine", func() (native.Ptr, error) {
		p, errp := abi.EngineNew(c.native())
		return constructed(abi, "engine", p, errp, abi.EngineDelete)
	}, abi.EngineDelete)
	if err != nil {
		log.Debug("engine construction failed", zap.Error(err))
		return nil, err
	}
	return &Engine{abi: abi, h: h, log: log, cfg: c}, nil
}

// Close releases the engine. Stores and modules created from it report
// invalid afterwards and must still be closed themselves.
func (e *Engine) Close() error {
	e.h.Release()
	return nil
}

// IsValid reports whether the engine has not been closed.
func (e *Engine) IsValid() bool { return e.h.IsValid() }

// IncrementEpoch advances the epoch counter, interrupting calls in stores
// whose deadline has passed. It may be called from any goroutine.
func (e *Engine) IncrementEpoch() {
	if p, ok := e.h.Ptr(); ok {
		e.abi.EngineIncrementEpoch(p)
	}
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config { return e.cfg }
