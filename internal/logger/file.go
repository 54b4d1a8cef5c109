package logger

import (
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger is the rotating-file tier. Entries are written as JSON lines
// through lumberjack, which handles rotation and compression.
type FileLogger struct {
	logger  *lumberjack.Logger
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewFileLogger creates the file tier from configuration
func NewFileLogger(config *Config) (*FileLogger, error) {
	if !config.File.Enabled {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	lumber := &lumberjack.Logger{
		Filename:   config.File.Path,
		MaxSize:    config.File.MaxSizeMB,
		MaxBackups: config.File.MaxBackups,
		MaxAge:     config.File.MaxAgeDays,
		Compress:   config.File.Compress,
	}

	return &FileLogger{
		logger:  lumber,
		encoder: json.NewEncoder(lumber),
	}, nil
}

func (fl *FileLogger) log(entry *LogEntry) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	// Encode errors are dropped; file logging must never take down the sweep
	_ = fl.encoder.Encode(entry)
}

// Close closes the underlying log file
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.logger.Close()
}
