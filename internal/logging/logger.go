// Package logging provides zap logger helpers.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Development bool
	// FilePath, when set, duplicates log output into a rolling file so a
	// multi-day run keeps a durable trail next to the archive.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a zap.Logger configured for development or production, optionally
// teeing into a rolling file.
func New(cfg Config) (*zap.Logger, error) {
	var encoderCfg zapcore.EncoderConfig
	var consoleEncoder zapcore.Encoder
	level := zapcore.InfoLevel

	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(encoderCfg)
		level = zapcore.DebugLevel
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		consoleEncoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level)
	cores := []zapcore.Core{consoleCore}

	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "ts"
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), fileSink, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
