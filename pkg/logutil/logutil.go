// Package logutil implements various log utilities.
package logutil

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var DefaultLogLevel = "info"

// ConvertToZapLevel converts log level string to zapcore.Level.
func ConvertToZapLevel(lvl string) zapcore.Level {
	switch lvl {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "dpanic":
		return zap.DPanicLevel
	case "panic":
		return zap.PanicLevel
	case "fatal":
		return zap.FatalLevel
	default:
		panic(fmt.Sprintf("unknown level %q", lvl))
	}
}

// GetDefaultZapLoggerConfig returns a new default zap logger configuration.
func GetDefaultZapLoggerConfig() zap.Config {
	return zap.Config{
		Level:       zap.NewAtomicLevelAt(ConvertToZapLevel(DefaultLogLevel)),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},

		// 'json' or 'console'
		Encoding: "console",

		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     iso8601UTCTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},

		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// AddOutputPaths adds output paths to the existing output paths, de-duplicating.
func AddOutputPaths(lcfg zap.Config, outputPaths, errorOutputPaths []string) zap.Config {
	cfg := lcfg
	outs := make(map[string]struct{})
	for _, v := range cfg.OutputPaths {
		outs[v] = struct{}{}
	}
	for _, v := range outputPaths {
		outs[v] = struct{}{}
	}
	cfg.OutputPaths = nil
	for v := range outs {
		cfg.OutputPaths = append(cfg.OutputPaths, v)
	}

	errOuts := make(map[string]struct{})
	for _, v := range cfg.ErrorOutputPaths {
		errOuts[v] = struct{}{}
	}
	for _, v := range errorOutputPaths {
		errOuts[v] = struct{}{}
	}
	cfg.ErrorOutputPaths = nil
	for v := range errOuts {
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, v)
	}

	return cfg
}

// New creates a new zap logger with the given log level and outputs.
// Valid outputs are 'stderr', 'stdout', or file names.
func New(logLevel string, logOutputs []string) (*zap.Logger, error) {
	lcfg := AddOutputPaths(GetDefaultZapLoggerConfig(), logOutputs, logOutputs)
	lcfg.Level = zap.NewAtomicLevelAt(ConvertToZapLevel(logLevel))
	return lcfg.Build()
}

func iso8601UTCTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z0700"))
}
