package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

var globalBase *zap.Logger

// Init initializes a global zap logger. The env can be "production" or "development" (default).
// It also redirects the stdlib log output to zap so existing log.Printf calls are captured.
func Init(env string) (*zap.Logger, error) {
	if globalBase != nil {
		return globalBase, nil
	}

	var cfg zap.Config
	if strings.EqualFold(env, "prod") || strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(base)
	_ = zap.RedirectStdLog(base) // route log.Printf to zap

	globalBase = base
	return globalBase, nil
}

// Base returns the global *zap.Logger, initializing it on first use.
func Base() *zap.Logger {
	if globalBase == nil {
		initFallback()
	}
	return globalBase
}

func initFallback() {
	env := os.Getenv("LOG_ENV")
	if _, err := Init(env); err != nil {
		globalBase, _ = zap.NewDevelopment()
	}
}

// Sync flushes any buffered log entries.
func Sync() {
	if globalBase != nil {
		_ = globalBase.Sync()
	}
}
