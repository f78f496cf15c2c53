// Package logutil holds the process-wide zap logger.
package logutil

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
	mu     sync.Mutex
)

// InitLogger builds the process logger. An empty path disables logging; "-"
// logs to stderr. Later calls have no effect.
func InitLogger(path string, debug bool) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		l, err = build(path, debug)
		if err != nil {
			return
		}
		mu.Lock()
		logger = l
		mu.Unlock()
	})
	return err
}

func build(path string, debug bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if path == "-" {
		path = "stderr"
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// GetLogger returns the process logger, or a no-op logger before InitLogger.
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
