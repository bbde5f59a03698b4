// Package logging builds the zap loggers used across zoo.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats.
const (
	FormatProduction  = "production"  // JSON lines
	FormatDevelopment = "development" // human-readable console
	FormatNop         = "nop"         // discard everything
)

// New creates a logger writing to stderr at level in the given format.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case FormatProduction, "json":
		cfg = zap.NewProductionConfig()
	case FormatDevelopment, "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	case FormatNop:
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected %s, %s or %s)",
			format, FormatProduction, FormatDevelopment, FormatNop)
	}

	cfg.Level = lvl
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
