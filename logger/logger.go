// logger/logger.go
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// state bundles everything a swap of the active logger has to replace at once.
type state struct {
	base   *zap.Logger        // caller-accurate logger handed out by With
	facade *zap.SugaredLogger // skips one frame for the package-level helpers
	file   *os.File
}

var (
	current atomic.Pointer[state]
	level   = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	once    sync.Once
	mu      sync.Mutex
)

// ensureInitialized creates a console logger if Init was never called
func ensureInitialized() {
	once.Do(func() {
		if current.Load() != nil {
			return
		}
		install(zap.New(consoleCore(), zap.AddCaller()), nil)
	})
}

func install(base *zap.Logger, file *os.File) {
	current.Store(&state{
		base:   base,
		facade: base.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		file:   file,
	})
}

func consoleCore() zapcore.Core {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), level)
}

func fileCore(f *os.File) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(f), level)
}

// Init initializes the logger with optional file and console output
// If filename is empty, logs only to console
// If console is false, logs only to file (JSON lines)
func Init(filename string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	var cores []zapcore.Core
	var file *os.File

	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		cores = append(cores, fileCore(f))
	}

	if console {
		cores = append(cores, consoleCore())
	}

	if len(cores) == 0 {
		return fmt.Errorf("no output destination specified")
	}

	closeFile()
	install(zap.New(zapcore.NewTee(cores...), zap.AddCaller()), file)
	once.Do(func() {})
	return nil
}

// Replace swaps in an already built zap logger and returns a function that
// restores the previous one. Tests use it with zaptest/observer.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	defer mu.Unlock()
	once.Do(func() {})
	prev := current.Load()
	install(l, nil)
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if prev != nil {
			current.Store(prev)
		}
	}
}

// SetLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR)
func SetLevel(l LogLevel) {
	switch l {
	case DEBUG:
		level.SetLevel(zapcore.DebugLevel)
	case INFO:
		level.SetLevel(zapcore.InfoLevel)
	case WARN:
		level.SetLevel(zapcore.WarnLevel)
	default:
		level.SetLevel(zapcore.ErrorLevel)
	}
}

// ParseLevel maps a config string onto a LogLevel; unknown values mean INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Close flushes buffered entries and closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if s := current.Load(); s != nil {
		_ = s.base.Sync()
	}
	closeFile()
}

func closeFile() {
	s := current.Load()
	if s == nil || s.file == nil {
		return
	}
	s.file.Close()
	install(zap.New(consoleCore(), zap.AddCaller()), nil)
}

// With returns a structured logger carrying the given key/value pairs,
// e.g. logger.With("job_id", id, "kind", kind).Infof(...)
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	ensureInitialized()
	return current.Load().base.Sugar().With(keysAndValues...)
}

func facade() *zap.SugaredLogger {
	ensureInitialized()
	return current.Load().facade
}

// Debug logs a debug message
func Debug(v ...interface{}) { facade().Debug(fmt.Sprint(v...)) }

// Debugf logs a formatted debug message
func Debugf(format string, v ...interface{}) { facade().Debugf(format, v...) }

// Info logs an info message
func Info(v ...interface{}) { facade().Info(fmt.Sprint(v...)) }

// Infof logs a formatted info message
func Infof(format string, v ...interface{}) { facade().Infof(format, v...) }

// Warn logs a warning message
func Warn(v ...interface{}) { facade().Warn(fmt.Sprint(v...)) }

// Warnf logs a formatted warning message
func Warnf(format string, v ...interface{}) { facade().Warnf(format, v...) }

// Error logs an error message
func Error(v ...interface{}) { facade().Error(fmt.Sprint(v...)) }

// Errorf logs a formatted error message
func Errorf(format string, v ...interface{}) { facade().Errorf(format, v...) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	facade().Error(fmt.Sprint(v...))
	Close()
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	facade().Errorf(format, v...)
	Close()
	os.Exit(1)
}
