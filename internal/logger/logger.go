// Package logger provides structured, component-tagged logging for the
// report sweeper. Entries are dispatched to a console tier and an optional
// rotating-file tier.
package logger

import (
	"fmt"
	"sync"
	"time"
)

// Logger is the interface used throughout the application
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithFields returns a logger that includes the given fields on every entry
	WithFields(fields map[string]interface{}) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// LogEntry is a single structured log record
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Component Component              `json:"component,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// MultiLogger implements Logger by dispatching entries to the configured tiers
type MultiLogger struct {
	config     *Config
	console    *ConsoleLogger
	file       *FileLogger
	baseFields map[string]interface{}
	component  Component
}

// NewLogger creates a logger from the given configuration
func NewLogger(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{
		config:     config,
		baseFields: make(map[string]interface{}),
	}

	if config.Console.Enabled {
		ml.console = NewConsoleLogger(config)
	}

	if config.File.Enabled {
		file, err := NewFileLogger(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		ml.file = file
	}

	return ml, nil
}

func (ml *MultiLogger) Debug(msg string, args ...interface{}) { ml.log(LevelDebug, msg, args...) }
func (ml *MultiLogger) Info(msg string, args ...interface{})  { ml.log(LevelInfo, msg, args...) }
func (ml *MultiLogger) Warn(msg string, args ...interface{})  { ml.log(LevelWarn, msg, args...) }
func (ml *MultiLogger) Error(msg string, args ...interface{}) { ml.log(LevelError, msg, args...) }

// WithFields returns a logger carrying additional base fields
func (ml *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: merged,
		component:  ml.component,
	}
}

// WithComponent returns a logger tagged with the given component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: ml.baseFields,
		component:  component,
	}
}

// Close closes all tiers
func (ml *MultiLogger) Close() error {
	if ml.file != nil {
		return ml.file.Close()
	}
	return nil
}

// log builds an entry from alternating key/value args and dispatches it
func (ml *MultiLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !ml.config.enabled(level) {
		return
	}

	fields := make(map[string]interface{}, len(ml.baseFields)+len(args)/2)
	for k, v := range ml.baseFields {
		fields[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields[key] = args[i+1]
	}

	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: ml.component,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if ml.console != nil {
		ml.console.log(entry)
	}
	if ml.file != nil {
		ml.file.log(entry)
	}
}

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// Default returns the process-wide logger, creating a console-only logger
// on first use if none has been set
func Default() Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := NewLogger(DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("failed to create default logger: %v", err))
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
