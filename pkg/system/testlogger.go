package system

import "go.uber.org/zap"

func newTestConfig() zap.Config {
	cfg := zap.NewDevelopmentConfig()
	// Stacktraces on every warning drown out the assertion output.
	cfg.DisableStacktrace = true
	return cfg
}

// NewTestZapLogger returns a development *zap.Logger for tests that inject
// the non-sugared type, e.g. the API server and the audit sinks.
func NewTestZapLogger() *zap.Logger {
	logger, _ := newTestConfig().Build()
	return logger
}

// NewTestLogger returns a sugared development logger for tests. Most engine
// components take a *zap.SugaredLogger.
func NewTestLogger() *zap.SugaredLogger {
	return NewTestZapLogger().Sugar()
}
