package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/native"
)

// Config holds configuration for engine creation
type Config struct {
	// Backend is the native runtime. nil selects the shared wazero backend.
	Backend native.ABI

	// Logger overrides the package logger for everything created from the engine.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the backend default.
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal.
	EnableThreads bool

	// Interpreter selects the backend's interpreter instead of its compiler.
	Interpreter bool

	// ConsumeFuel enables fuel metering; set the budget with Store.SetFuel.
	ConsumeFuel bool

	// EpochInterruption enables epoch deadlines; see Store.SetEpochDeadline
	// and Engine.IncrementEpoch.
	EpochInterruption bool

	// CloseOnContextDone aborts running calls when their context is done.
	CloseOnContextDone bool
}

func (c *Config) native() native.EngineConfig {
	return native.EngineConfig{
		MemoryLimitPages:   c.MemoryLimitPages,
		EnableThreads:      c.EnableThreads,
		Interpreter:        c.Interpreter,
		ConsumeFuel:        c.ConsumeFuel,
		EpochInterruption:  c.EpochInterruption,
		CloseOnContextDone: c.CloseOnContextDone,
	}
}

var (
	defaultBackend     native.ABI
	defaultBackendOnce sync.Once
)

// DefaultBackend returns the process-wide wazero backend.
func DefaultBackend() native.ABI {
	defaultBackendOnce.Do(func() {
		defaultBackend = engine.New()
	})
	return defaultBackend
}
