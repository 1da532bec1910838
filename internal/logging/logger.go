// Package logging builds the daemon's zap.Logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger constructs a zap.Logger at the given level ("debug", "info",
// "warn", "error") and format ("console" or "json"). The returned
// AtomicLevel can change verbosity without rebuilding the logger;
// cmd/stasis sets the level once at startup (from -log-level, or debug with
// --verbose) and does not change it afterwards.
//
// logPath is tee'd alongside the console: every entry is written both to
// stderr and to logPath, so the IPC `dump` command has a real file to tail.
// logPath == "" disables the file sink (console/stderr only).
func BuildLogger(level, format, logPath string) (*zap.Logger, zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			return nil, zap.AtomicLevel{}, fmt.Errorf("create log directory for %q: %w", logPath, err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, logPath)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, logPath)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return log, cfg.Level, nil
}
