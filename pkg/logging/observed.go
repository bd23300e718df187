package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObservedLogger returns a logger whose entries are captured in memory.
// Tests use it to assert that failures were logged rather than propagated.
func NewObservedLogger(level zapcore.Level) (*ColoredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &ColoredLogger{Logger: zap.New(core)}, logs
}
