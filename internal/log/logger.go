// Package log wraps zap for structured logging across the pipeline.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	logger = zap.NewNop()
)

// Init configures the global logger. Debug enables development encoding
// and debug-level output.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		l, err = cfg.Build()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		l, err = cfg.Build()
	}
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	logger = l
	zap.ReplaceGlobals(l)
	return nil
}

// L returns the global logger.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = L().Sync()
}
