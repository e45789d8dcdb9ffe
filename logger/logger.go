package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is a no-op logger until Init is called, so packages and tests can log freely.
var Log *zap.SugaredLogger = zap.NewNop().Sugar()

// Init 初始化全局日志，level 为空时使用 info
func Init(level string) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			panic("invalid log level " + level + ": " + err.Error())
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
