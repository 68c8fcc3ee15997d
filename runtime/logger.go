package runtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/internal/handle"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the runtime package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the runtime package's logger. Handle cleanups log
// through it too. This must be called before any engine is created.
func SetLogger(l *zap.Logger) {
	logger = l
	handle.SetLogger(l)
}
