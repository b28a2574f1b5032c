// Package logger builds the zap loggers of the service and carries the
// request-scoped logger through contexts.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kailas-cloud/docdex/internal/version"
)

// presets maps an environment to its base zap configuration. A nil preset
// means logging is discarded.
var presets = map[string]func() *zap.Config{
	"prod": func() *zap.Config {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return &cfg
	},
	"local":  console,
	"dev":    console,
	"docker": console,
	"test":   nil,
}

func console() *zap.Config {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return &cfg
}

// New creates the logger for env. level overrides the preset level when
// non-empty (debug, info, warn, error).
func New(env, level string) (*zap.Logger, error) {
	preset, ok := presets[env]
	if !ok {
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}
	if preset == nil {
		return zap.NewNop(), nil
	}
	cfg := preset()

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}

	l, err := cfg.Build(
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", "docdex"),
			zap.String("version", version.Version),
			zap.String("commit", version.Commit),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
