// Package logging builds the console logger shared by the CLI and libraries.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a development-style console logger at the given level.
// Caller info and stacktraces are only kept at debug level.
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	logCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if lvl == zapcore.DebugLevel {
		logCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	} else {
		logCfg.DisableStacktrace = true
		logCfg.DisableCaller = true
	}

	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
