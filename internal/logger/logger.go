// Package logger provides the engine's structured logging backend: a
// logrus logger writing to an hourly-rotated file via file-rotatelogs,
// mirroring WARN/ERROR to the console. It exposes both the package-level
// API the teacher's call sites use and a *Logger value satisfying the
// reader.Logger/writer.Logger interfaces for dependency injection.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

// Level lists supported log severities.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelMap = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// Logger wraps a logrus.Logger writing to a rotated file, with WARN and
// above additionally echoed to stdout.
type Logger struct {
	mu      sync.Mutex
	file    *logrus.Logger
	path    string
	console bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init creates the global logger. logFilePrefix names the rotated file,
// e.g. "rmtcore" yields logs/rmtcore.log.%Y%m%d%H with a stable symlink
// at logs/rmtcore.log.
func Init(logDir string, level Level, logFilePrefix string) error {
	var initErr error
	once.Do(func() {
		l, err := New(logDir, level, logFilePrefix)
		if err != nil {
			initErr = err
			return
		}
		defaultLogger = l
	})
	return initErr
}

// New builds a standalone Logger, independent of the package-level global.
func New(logDir string, level Level, logFilePrefix string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: mkdir %s: %w", logDir, err)
	}
	if logFilePrefix == "" {
		logFilePrefix = "rmtcore"
	}
	base := filepath.Join(logDir, logFilePrefix+".log")

	writer, err := rotatelogs.New(
		base+".%Y%m%d%H",
		rotatelogs.WithLinkName(base),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("logger: rotatelogs: %w", err)
	}

	file := logrus.New()
	file.SetOutput(writer)
	file.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lv, ok := levelMap[level]; ok {
		file.SetLevel(lv)
	}

	return &Logger{file: file, path: base, console: true}, nil
}

// Close is a no-op retained for API parity; rotatelogs manages its own
// file handles and has nothing for the caller to flush.
func Close() error { return nil }

// GetLogFilePath returns the backing log file's stable (symlinked) path.
func GetLogFilePath() string {
	if defaultLogger != nil {
		return defaultLogger.path
	}
	return ""
}

func (l *Logger) echo(level Level, msg string) {
	if !l.console || level < WARN {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stdout, "%s [rmtcore] %s\n", time.Now().Format("2006/01/02 15:04:05"), msg)
}

// Debugf logs at debug level (file only).
func (l *Logger) Debugf(format string, args ...any) {
	l.file.Debugf(format, args...)
}

// Infof logs at info level (file only).
func (l *Logger) Infof(format string, args ...any) {
	l.file.Infof(format, args...)
}

// Warnf logs at warn level (file + console).
func (l *Logger) Warnf(format string, args ...any) {
	l.file.Warnf(format, args...)
	l.echo(WARN, fmt.Sprintf(format, args...))
}

// Errorf logs at error level (file + console).
func (l *Logger) Errorf(format string, args ...any) {
	l.file.Errorf(format, args...)
	l.echo(ERROR, fmt.Sprintf(format, args...))
}

// Default returns the global Logger initialized by Init, or nil if Init
// was never called.
func Default() *Logger { return defaultLogger }

// Debug logs at debug level on the global logger (file only).
func Debug(format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debugf(format, args...)
	}
}

// Info logs at info level on the global logger (file only).
func Info(format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Infof(format, args...)
	}
}

// Warn logs at warn level on the global logger (file + console).
func Warn(format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warnf(format, args...)
	}
}

// Error logs at error level on the global logger (file + console).
func Error(format string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Errorf(format, args...)
	}
}
