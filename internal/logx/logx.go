package logx

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger tagged with the service and host name. Output
// goes through a zap production core; callers keep the slog API.
func New(service string, level string) *slog.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.OutputPaths = []string{"stdout"}
	cfg.Sampling = nil
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewExample()
	}
	return FromCore(zl.Core(), service)
}

// FromCore wraps an existing zap core.
func FromCore(core zapcore.Core, service string) *slog.Logger {
	hostname, _ := os.Hostname()
	return slog.New(zapslog.NewHandler(core)).With(
		slog.String("service", service),
		slog.String("hostname", hostname),
	)
}

// Nop discards everything; used by tests and optional dependencies.
func Nop() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
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
