// Package observability owns logger construction. Two profiles exist:
// STRUCTURED emits JSON for log pipelines, CONSOLE emits human-readable
// output for interactive use.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for command-line output paths.
// InitCLILogger replaces it; before that it is a no-op logger so early
// code paths can log unconditionally.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger. Structured selects JSON output;
// otherwise a console encoder with colored levels is used. Unknown level
// strings fall back to info.
func InitCLILogger(level string, structured bool) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	if !structured {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Logger construction only fails on bad sink paths, which the
		// default config never uses.
		logger = zap.NewNop()
	}
	CLILogger = logger
}

// NewServerLogger builds the logger for the HTTP server process and
// installs it as the zap global so library code using zap.L() shares it.
func NewServerLogger(level, profile string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	if strings.EqualFold(profile, "CONSOLE") {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
