// Package log builds the structured logging capability threaded through
// the process: a zap core underneath a logr.Logger interface, so the rest
// of the codebase depends only on the vendor-neutral logr API.
package log

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls level, format, and output destinations.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
	// Format is one of "json", "console".
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// File, when non-empty, appends logs to this path in addition to Stdout.
	File string `yaml:"file" envconfig:"LOG_FILE"`
	// Stdout controls whether logs are also written to standard output.
	Stdout bool `yaml:"stdout" envconfig:"LOG_STDOUT"`
}

// DefaultConfig returns the gateway's default logging configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Stdout: true}
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("log: unknown level %q", level)
	}
}

// New builds a root logr.Logger backed by zap per cfg.
func New(cfg Config) (logr.Logger, func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return logr.Logger{}, func() {}, err
	}

	var encoderCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var syncers []zapcore.WriteSyncer
	var closers []*os.File
	if cfg.Stdout || cfg.File == "" {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return logr.Logger{}, func() {}, fmt.Errorf("log: opening log file: %w", err)
		}
		syncers = append(syncers, zapcore.AddSync(f))
		closers = append(closers, f)
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	zapLog := zap.New(core, zap.AddCaller())

	cleanup := func() {
		_ = zapLog.Sync()
		for _, f := range closers {
			_ = f.Close()
		}
	}

	return zapr.NewLogger(zapLog), cleanup, nil
}
