// Package logger provides the structured logger shared by the control
// surface and the execution agent: a console tier plus an optional rotating
// file tier, with key-value variadic fields.
package logger

import (
	"fmt"
	"sync"
	"time"
)

// Logger is the main interface for logging throughout the application
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]any) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// Entry is a single log entry with all metadata
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component Component      `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// MultiLogger implements Logger by dispatching to the enabled tiers
type MultiLogger struct {
	config     *Config
	console    *consoleSink
	file       *fileSink
	baseFields map[string]any
	component  Component
}

// New creates a logger from the given configuration.
func New(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{config: config}

	if config.Console.Enabled {
		ml.console = newConsoleSink(config)
	}
	if config.File.Enabled {
		ml.file = newFileSink(config)
	}
	return ml, nil
}

func (ml *MultiLogger) Debug(msg string, args ...any) { ml.log(LevelDebug, msg, args...) }
func (ml *MultiLogger) Info(msg string, args ...any)  { ml.log(LevelInfo, msg, args...) }
func (ml *MultiLogger) Warn(msg string, args ...any)  { ml.log(LevelWarn, msg, args...) }
func (ml *MultiLogger) Error(msg string, args ...any) { ml.log(LevelError, msg, args...) }

// WithFields returns a new logger with additional fields
func (ml *MultiLogger) WithFields(fields map[string]any) Logger {
	merged := make(map[string]any, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	clone := *ml
	clone.baseFields = merged
	return &clone
}

// WithComponent returns a new logger tagged with a component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	clone := *ml
	clone.component = component
	return &clone
}

// Close flushes and closes all log destinations
func (ml *MultiLogger) Close() error {
	if ml.file != nil {
		return ml.file.close()
	}
	return nil
}

func (ml *MultiLogger) log(level Level, msg string, args ...any) {
	if levelRank[level] < levelRank[ml.config.Level] {
		return
	}

	fields := make(map[string]any, len(ml.baseFields)+len(args)/2)
	for k, v := range ml.baseFields {
		fields[k] = v
	}
	// Variadic args are key-value pairs; a dangling key is dropped.
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprintf("%v", args[i])] = args[i+1]
	}

	entry := &Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   msg,
		Component: ml.component,
		Fields:    fields,
	}

	if ml.console != nil {
		ml.console.write(entry)
	}
	if ml.file != nil {
		ml.file.write(entry)
	}
}

// NoOpLogger is a logger that does nothing (for testing)
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...any)           {}
func (n *NoOpLogger) Info(msg string, args ...any)            {}
func (n *NoOpLogger) Warn(msg string, args ...any)            {}
func (n *NoOpLogger) Error(msg string, args ...any)           {}
func (n *NoOpLogger) WithFields(fields map[string]any) Logger { return n }
func (n *NoOpLogger) WithComponent(component Component) Logger {
	return n
}
func (n *NoOpLogger) Close() error { return nil }

var _ Logger = (*NoOpLogger)(nil)

// Global default logger (can be replaced)
var (
	defaultLogger Logger = &NoOpLogger{}
	loggerMu      sync.RWMutex
)

// SetDefault sets the global default logger
func SetDefault(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
}

// Default returns the global default logger
func Default() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}
