// Package logging builds the zap logger shared by the CLI and services.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saadjs/carbon-cli/internal/app"
	"github.com/saadjs/carbon-cli/internal/config"
)

// New builds a production logger from cfg. verbose forces debug level.
// Logs go to stderr, plus cfg.File when set, so command output on stdout
// stays machine readable.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
	case "console", "text":
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zc.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		if err := app.EnsureDir(cfg.File); err != nil {
			return nil, err
		}
		zc.OutputPaths = append(zc.OutputPaths, cfg.File)
	}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return level, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return level, nil
}
