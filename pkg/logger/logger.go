// Package logger provides the process-wide structured logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger = zap.NewNop()
	logFile      *os.File
	mu           sync.RWMutex
)

// Options configures Init.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, if set, receives JSON log lines at every level.
	File string
	// Console writes human-readable lines at Level to Console.
	// Nil disables console output.
	Console io.Writer
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// Init replaces the global logger. Without a console writer or file the
// logger discards everything.
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	var cores []zapcore.Core
	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig()),
			zapcore.Lock(zapcore.AddSync(opts.Console)),
			level,
		))
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		logFile = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(f),
			zapcore.DebugLevel,
		))
	}

	if len(cores) == 0 {
		globalLogger = zap.NewNop()
		return nil
	}
	globalLogger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return nil
}

// Close flushes the logger and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	_ = globalLogger.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = zap.NewNop()
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Named returns a child of the global logger for a component.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With returns a child of the global logger carrying fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

func sugar() *zap.SugaredLogger {
	return L().WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Info logs an info message.
func Info(format string, v ...interface{}) { sugar().Infof(format, v...) }

// Debug logs a debug message.
func Debug(format string, v ...interface{}) { sugar().Debugf(format, v...) }

// Error logs an error message.
func Error(format string, v ...interface{}) { sugar().Errorf(format, v...) }

// Warn logs a warning message.
func Warn(format string, v ...interface{}) { sugar().Warnf(format, v...) }

// GetWriter returns the log file for components that write raw output,
// such as driver wire traces.
func GetWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
