// Package logx provides component-scoped logging with a leveled threshold and an in-memory tail.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	component string
	logger    *log.Logger
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// LogEntry represents a structured log entry served by the HTTP API.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// InMemoryLogBuffer stores recent log entries.
type InMemoryLogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
	minLevel           = LevelInfo

	logBuffer = &InMemoryLogBuffer{
		entries: make([]LogEntry, 0),
		maxSize: 500,
	}
)

func init() { //nolint:gochecknoinits // Required for env var initialization
	initFromEnv()
}

// initFromEnv reads BOXONOMICS_LOG_LEVEL and DEBUG.
func initFromEnv() {
	outputMu.Lock()
	defer outputMu.Unlock()

	if lvl := os.Getenv("BOXONOMICS_LOG_LEVEL"); lvl != "" {
		if parsed, ok := parseLevel(lvl); ok {
			minLevel = parsed
		}
	}
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		minLevel = LevelDebug
	}
}

func parseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	default:
		return "", false
	}
}

func rank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(writer{}, "", 0),
	}
}

// writer forwards to the current global output so SetOutput affects existing loggers.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p) //nolint:wrapcheck // passthrough writer
}

// SetOutput redirects all loggers. Stdio MCP servers point this at stderr or a file.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
}

// SetLogFile appends all log output to path in addition to stderr.
func SetLogFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	SetOutput(io.MultiWriter(os.Stderr, f))
	return func() error {
		SetOutput(os.Stderr)
		return f.Close()
	}, nil
}

// SetLevel sets the minimum level that is emitted. Unknown names are ignored.
func SetLevel(level string) {
	parsed, ok := parseLevel(level)
	if !ok {
		return
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	minLevel = parsed
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return minLevel == LevelDebug
}

func enabled(level Level) bool {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return rank(level) >= rank(minLevel)
}

// AddLogEntry adds a log entry to the in-memory buffer.
func (b *InMemoryLogBuffer) AddLogEntry(entry *LogEntry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// GetLogEntries returns a copy of current log entries, optionally filtered.
func (b *InMemoryLogBuffer) GetLogEntries(component string, since time.Time) []LogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	filtered := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		entry := &b.entries[i]
		if component != "" && !strings.EqualFold(entry.Component, component) {
			continue
		}
		if !since.IsZero() {
			entryTime, err := time.Parse(timestampFormat, entry.Timestamp)
			if err != nil || entryTime.Before(since) {
				continue
			}
		}
		filtered = append(filtered, *entry)
	}
	return filtered
}

// GetRecentLogEntries returns recent log entries.
func GetRecentLogEntries(component string, since time.Time) []LogEntry {
	return logBuffer.GetLogEntries(component, since)
}

func (l *Logger) log(level Level, format string, args ...any) {
	if !enabled(level) {
		return
	}
	timestamp := time.Now().UTC().Format(timestampFormat)
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))

	logBuffer.AddLogEntry(&LogEntry{
		Timestamp: timestamp,
		Component: l.component,
		Level:     string(level),
		Message:   message,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) With(component string) *Logger {
	return &Logger{
		component: l.component + "/" + component,
		logger:    l.logger,
	}
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
