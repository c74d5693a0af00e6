package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	zapLevels = map[int]zapcore.Level{
		LevelDebug: zapcore.DebugLevel,
		LevelInfo:  zapcore.InfoLevel,
		LevelWarn:  zapcore.WarnLevel,
		LevelError: zapcore.ErrorLevel,
	}

	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	mu   sync.RWMutex
	base *zap.SugaredLogger
)

// Logger is a component-scoped logger
type Logger struct {
	component string
}

func init() {
	if err := Init(GetAppEnv()); err != nil {
		base = zap.NewNop().Sugar()
	}
}

// Init rebuilds the shared zap core and resets the minimum level: DEBUG in
// development, INFO otherwise. Output goes to stdout plus any extra paths
// (for example "server.log").
func Init(env string, paths ...string) error {
	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg.Level = level
	cfg.OutputPaths = append([]string{"stdout"}, paths...)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
	return nil
}

// Sync flushes buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// New creates a new logger for a specific component
func New(component string) *Logger {
	return &Logger{component: component}
}

// SetMinLevel allows changing the minimum log level at runtime
func SetMinLevel(l int) {
	if zl, ok := zapLevels[l]; ok {
		level.SetLevel(zl)
	}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(l.component)
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar().Debugf(format, args...)
}

// Info logs information messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar().Infof(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar().Warnf(format, args...)
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar().Errorf(format, args...)
}

// With returns the underlying zap logger with structured fields attached.
func (l *Logger) With(args ...interface{}) *zap.SugaredLogger {
	return l.sugar().With(args...)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "development" // Default to development
	}
	return env
}

// IsDevelopment returns true if the current environment is development
func IsDevelopment() bool {
	return GetAppEnv() == "development"
}
