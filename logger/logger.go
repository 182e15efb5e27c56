// Package logger provides the leveled logging surface used across the kernel,
// backed by zap. Components accept a Logger value rather than reaching for a
// global, so embedders can route kernel logs wherever they like.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal leveled surface kernel components depend on.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type sugared struct {
	s *zap.SugaredLogger
}

func (l sugared) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l sugared) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l sugared) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l sugared) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }

// New builds a production logger at the given level ("debug", "info", "warn",
// "error"; anything else means info).
func New(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return sugared{s: l.Sugar()}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) Logger {
	return sugared{s: l.Sugar()}
}

// Nop discards everything. Handy default for tests and optional fields.
func Nop() Logger {
	return sugared{s: zap.NewNop().Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
