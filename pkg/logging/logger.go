// Package logging provides component loggers backed by zerolog.
//
// The process configures the shared output once with Setup; components then
// take a named logger with NewLogger and log with printf-style helpers. All
// entries carry the component name and the process session ID.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures the shared log output.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "console" for human-readable output or "json".
	Format string
	// File, when set, receives the log instead of stderr.
	File string
}

// Logger is a component logger.
type Logger struct {
	component string
	zl        zerolog.Logger
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	mu      sync.RWMutex
	base    = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	logFile *os.File
)

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// GetSessionID returns the ID shared by all loggers of this process.
func GetSessionID() string {
	return getSessionID()
}

// DefaultLogFile returns ~/.scout/logs/<session>-scout.log.
func DefaultLogFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".scout", "logs", getSessionID()+"-scout.log"), nil
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Setup replaces the shared output. Loggers created before the call keep
// their previous output, so call it early in main.
func Setup(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = file
	}

	switch opts.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: file != nil}
	case "json":
	default:
		if file != nil {
			_ = file.Close()
		}
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file
	base = zerolog.New(out).With().Timestamp().Str("session", getSessionID()).Logger().Level(level)
	return nil
}

// Close releases the log file opened by Setup, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	base = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(base.GetLevel())
	return err
}

// NewLogger creates a logger for a specific component on the shared output.
func NewLogger(component string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{component: component, zl: base.With().Str("component", component).Logger()}
}

// New creates a logger writing JSON to w at debug level. Used by tests and
// callers that need an isolated sink.
func New(w io.Writer, component string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger().Level(zerolog.DebugLevel)
	return &Logger{component: component, zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{component: l.component, zl: l.zl.With().Interface(key, value).Logger()}
}

// Printf logs a formatted message at info level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}
