package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG   LogLevel = "debug"
	INFO    LogLevel = "info"
	WARNING LogLevel = "warning"
	ERROR   LogLevel = "error"
	FATAL   LogLevel = "fatal"
)

// Logger provides structured logging on top of zap.
type Logger struct {
	z        *zap.Logger
	minLevel LogLevel
}

// New creates a JSON logger on stdout using LOG_LEVEL.
func New() *Logger {
	return NewWithWriter(os.Getenv("LOG_LEVEL"), "json", os.Stdout)
}

// NewWithConfig creates a stdout logger for the given level and format ("json" or "console").
func NewWithConfig(level, format string) *Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(level, format string, w io.Writer) *Logger {
	minLevel := parseLevel(level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    encodeLevel,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "console") {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapLevel(minLevel))
	return &Logger{
		z:        zap.New(core),
		minLevel: minLevel,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{z: zap.NewNop(), minLevel: FATAL}
}

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warning", "warn":
		return WARNING
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func zapLevel(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARNING:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// encodeLevel keeps the level names used by the rest of the codebase.
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.DebugLevel:
		enc.AppendString(string(DEBUG))
	case zapcore.InfoLevel:
		enc.AppendString(string(INFO))
	case zapcore.WarnLevel:
		enc.AppendString(string(WARNING))
	case zapcore.ErrorLevel:
		enc.AppendString(string(ERROR))
	default:
		enc.AppendString(string(FATAL))
	}
}

// Level returns the minimum level that is written.
func (l *Logger) Level() LogLevel {
	return l.minLevel
}

func fields(err error, labels map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 2)
	if err != nil {
		fs = append(fs, zap.String("error", err.Error()))
	}
	if len(labels) > 0 {
		fs = append(fs, zap.Any("labels", labels))
	}
	return fs
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, labels map[string]string) {
	l.z.Debug(msg, fields(nil, labels)...)
}

// Info logs an info message
func (l *Logger) Info(msg string, labels map[string]string) {
	l.z.Info(msg, fields(nil, labels)...)
}

// Warning logs a warning message
func (l *Logger) Warning(msg string, err error, labels map[string]string) {
	l.z.Warn(msg, fields(err, labels)...)
}

// Error logs an error message
func (l *Logger) Error(msg string, err error, labels map[string]string) {
	l.z.Error(msg, fields(err, labels)...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, err error, labels map[string]string) {
	l.z.Fatal(msg, fields(err, labels)...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
