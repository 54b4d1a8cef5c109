package logger

import "fmt"

// LogLevel represents the minimum severity that will be logged
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output encoding of console logs
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Component tags a log entry with the subsystem that emitted it
type Component string

const (
	ComponentSweeper   Component = "sweeper"
	ComponentStore     Component = "store"
	ComponentSynthesis Component = "synthesis"
	ComponentMain      Component = "main"
)

// ConsoleConfig configures the console tier
type ConsoleConfig struct {
	Enabled bool
	Color   bool
}

// FileConfig configures the rotating-file tier
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config holds the full logger configuration
type Config struct {
	Level   LogLevel
	Format  LogFormat
	Console ConsoleConfig
	File    FileConfig
}

// DefaultConfig returns a configuration with console logging enabled
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: FormatText,
		Console: ConsoleConfig{
			Enabled: true,
			Color:   true,
		},
		File: FileConfig{
			Enabled:    false,
			Path:       "/var/log/reportsweep/reportsweep.log",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}

	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}

	if c.File.Enabled && c.File.Path == "" {
		return fmt.Errorf("file logging enabled but no path configured")
	}

	return nil
}

// severity maps levels to an ordering for filtering
func severity(level LogLevel) int {
	switch level {
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

// enabled reports whether a message at the given level should be emitted
func (c *Config) enabled(level LogLevel) bool {
	return severity(level) >= severity(c.Level)
}
