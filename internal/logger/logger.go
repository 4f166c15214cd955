package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// global is the shared logger instance used throughout the application.
	//nolint:gochecknoglobals // Logger is used all over the project, so it's okay.
	global atomic.Pointer[zap.SugaredLogger]
	// defaultLevel is the minimum log level for messages to be processed.
	//nolint:gochecknoglobals //  If the logging level is not set, the application will have no logs.
	defaultLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// errUnknownLevel is returned by Setup for a level name ParseLogLevel does not know.
var errUnknownLevel = errors.New("unknown log level")

// logFilePermissions restricts the diagnostic log to the current user and group.
const logFilePermissions = 0o640

func init() { //nolint:gochecknoinits // If the logging level is not set, the application will have no logs.
	SetLogger(New(defaultLevel))
}

// Options configures Setup.
type Options struct {
	// Level is the minimum level name (debug, info, warn, error). Empty keeps the current level.
	Level string
	// FilePath is an append-only log file written next to the console output. Empty disables it.
	FilePath string
}

// New creates a new instance of *zap.SugaredLogger with output in simple console format.
// If the logging level is not provided, the default level will be used.
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalColorLevelEncoder)),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, options...).Sugar()
}

// Setup replaces the global logger with one that writes to stdout and, when
// configured, appends timestamped lines to a file. Every write reaches the file
// before the logging call returns. The returned function flushes and closes the file.
func Setup(opts Options) (func(), error) {
	if opts.Level != "" {
		level, ok := ParseLogLevel(opts.Level)
		if !ok {
			return nil, fmt.Errorf("%q: %w", opts.Level, errUnknownLevel)
		}

		defaultLevel.SetLevel(level)
	}

	if opts.FilePath == "" {
		SetLogger(New(defaultLevel))

		return Sync, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(opts.FilePath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalColorLevelEncoder)),
		zapcore.AddSync(os.Stdout),
		defaultLevel,
	)

	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig(zapcore.CapitalLevelEncoder)),
		zapcore.AddSync(file),
		defaultLevel,
	)

	SetLogger(zap.New(zapcore.NewTee(consoleCore, fileCore)).Sugar())

	return func() {
		Sync()

		_ = file.Close()

		SetLogger(New(defaultLevel))
	}, nil
}

// encoderConfig returns the shared console layout with timestamps.
func encoderConfig(levelEncoder zapcore.LevelEncoder) zapcore.EncoderConfig {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LevelKey:         "level",
		NameKey:          "logger",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      levelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: ", ",
	}
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "dpanic":
		return zapcore.DPanicLevel, true
	case "panic":
		return zapcore.PanicLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global.Load()
}

// SetLogger sets the global logger.
func SetLogger(l *zap.SugaredLogger) {
	global.Store(l)
}

// Sync flushes buffered entries of the global logger.
func Sync() {
	//nolint: errcheck // Sync on stdout fails on some platforms and there is nowhere to report it.
	_ = Logger().Sync()
}

// Debug writes a debug level message using the logger from the context.
func Debug(ctx context.Context, args ...any) {
	FromContext(ctx).Debug(args...)
}

// DebugKV writes a message and key-value pairs
// at the debug level using the logger from the context.
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// Info writes an information level message using the logger from the context.
func Info(ctx context.Context, args ...any) {
	FromContext(ctx).Info(args...)
}

// InfoKV writes a message and key-value pairs
// at the information level using the logger from the context.
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// WarnKV writes a message and key-value pairs
// at the warning level using the logger from the context.
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// ErrorKV writes a message and key-value pairs
// at the error level using the logger from the context.
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}
