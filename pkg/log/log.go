// Package log provides the leveled, structured logger used across GraphShake.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger handed to every component. Key-value
// pairs follow the message.
type Logger interface {
	Debugw(msg string, keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
	Named(name string) Logger
	Sync() error
}

type sugared struct {
	*zap.SugaredLogger
}

func (l *sugared) With(keyvals ...interface{}) Logger {
	return &sugared{l.SugaredLogger.With(keyvals...)}
}

func (l *sugared) Named(name string) Logger {
	return &sugared{l.SugaredLogger.Named(name)}
}

const (
	DebugLevel = int(zapcore.DebugLevel)
	InfoLevel  = int(zapcore.InfoLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
)

// levelEnv overrides the level of DefaultLogger.
const levelEnv = "GRAPHSHAKE_LOG_LEVEL"

var (
	defaultOnce   sync.Once
	defaultLogger Logger
)

// DefaultLogger is the process-wide console logger, at info level unless
// GRAPHSHAKE_LOG_LEVEL says otherwise. Components fall back to it when no
// logger is supplied.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		level := InfoLevel
		if env, ok := os.LookupEnv(levelEnv); ok {
			if l, err := ParseLevel(env); err == nil {
				level = l
			}
		}
		defaultLogger = New(nil, level, false)
	})
	return defaultLogger
}

// New returns a logger writing to output (stdout when nil) at level, as
// JSON lines or colored console text.
func New(output zapcore.WriteSyncer, level int, isJSON bool) Logger {
	if output == nil {
		output = os.Stdout
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if isJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, output, zapcore.Level(level))
	return FromZap(zap.New(core, zap.WithCaller(true)))
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	return &sugared{l.Sugar()}
}

// ParseLevel maps debug, info, warn or error to its level.
func ParseLevel(s string) (int, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	if level > zapcore.ErrorLevel {
		return 0, fmt.Errorf("log level %q would hide errors", s)
	}
	return int(level), nil
}
