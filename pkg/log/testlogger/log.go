// Package testlogger builds loggers that write through testing.TB.
package testlogger

import (
	"os"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ZentaChain/graphshake/pkg/log"
)

// Level returns Debug when GRAPHSHAKE_TEST_LOGS=DEBUG and Info otherwise.
func Level(t testing.TB) zapcore.Level {
	if os.Getenv("GRAPHSHAKE_TEST_LOGS") == "DEBUG" {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// New returns a logger bound to t.
func New(t testing.TB) log.Logger {
	return log.FromZap(zaptest.NewLogger(t, zaptest.Level(Level(t)))).
		With("testName", t.Name())
}
