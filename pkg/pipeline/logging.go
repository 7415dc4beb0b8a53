package pipeline

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// ZapLogger implements the Logger interface on top of zap
type ZapLogger struct {
	zl *zap.Logger
}

// NewZapLogger creates a logger from the logging configuration. Output is
// "stdout", "stderr" or a file path opened in append mode.
func NewZapLogger(config LoggingConfig) (*ZapLogger, error) {
	var output io.Writer
	switch config.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log output: %w", err)
		}
		output = f
	}

	return NewZapLoggerWithWriter(config, output)
}

// NewZapLoggerWithWriter creates a logger writing to w
func NewZapLoggerWithWriter(config LoggingConfig, w io.Writer) (*ZapLogger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", config.Level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "text", "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)

	return &ZapLogger{
		zl: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
	}, nil
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

// Debug logs a debug message
func (l *ZapLogger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, toZapFields(fields)...)
}

// Info logs an info message
func (l *ZapLogger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, toZapFields(fields)...)
}

// Warn logs a warning message
func (l *ZapLogger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message
func (l *ZapLogger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, toZapFields(fields)...)
}

// Fatal logs a fatal message and exits
func (l *ZapLogger) Fatal(msg string, fields ...Field) {
	l.zl.Fatal(msg, toZapFields(fields)...)
}

// With creates a new logger with additional fields
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{zl: l.zl.With(toZapFields(fields)...)}
}

// Sync flushes buffered log entries
func (l *ZapLogger) Sync() error {
	return l.zl.Sync()
}

// DefaultLogger creates a console logger at info level
func DefaultLogger() Logger {
	logger, err := NewZapLoggerWithWriter(LoggingConfig{Level: "info", Format: "console"}, os.Stdout)
	if err != nil {
		return NullLogger()
	}
	return logger
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &ZapLogger{zl: zap.NewNop()}
}

// StdLogAdapter forwards the standard log package into a structured logger
type StdLogAdapter struct {
	logger Logger
}

// NewStdLogAdapter creates a new adapter for the standard log package
func NewStdLogAdapter(logger Logger) *StdLogAdapter {
	return &StdLogAdapter{logger: logger}
}

// Write implements io.Writer to capture standard log output
func (a *StdLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.logger.Info(msg, String("source", "stdlog"))
	}
	return len(p), nil
}

// SetAsStdLogger sets this adapter as the output for the standard log package
func (a *StdLogAdapter) SetAsStdLogger() {
	log.SetOutput(a)
	log.SetFlags(0) // Remove standard log formatting since we handle it
}
