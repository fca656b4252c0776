// Package logger builds the zap logger shared by the binaries.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProdStage selects JSON output; every other stage gets console output.
const ProdStage = "prod"

// New builds a logger for the given stage and level name.
func New(stage, level string) (*zap.Logger, error) {
	lvl := parseLevel(level)

	var cfg zap.Config
	if stage == ProdStage {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.MessageKey = "message"
		cfg.InitialFields = map[string]interface{}{
			"service": "phone-storefront",
			"stage":   stage,
		}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = stage == ProdStage && lvl > zapcore.DebugLevel

	return cfg.Build()
}

// MustNew is New that panics on error, for process start-up.
func MustNew(stage, level string) *zap.Logger {
	l, err := New(stage, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}
