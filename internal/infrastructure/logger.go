package infrastructure

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
)

// Init builds the global logger at the configured level. An unknown level
// falls back to info rather than failing startup.
func Init(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	Logger, _ = cfg.Build()
	Logger.Info("infrastructure initialized", zap.String("log_level", lvl.String()))
}
