package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// ConsoleLogger is the console tier. JSON output goes through log/slog's
// JSON handler; text output is formatted directly with optional color.
type ConsoleLogger struct {
	config  *Config
	slogger *slog.Logger
	out     io.Writer
	mu      sync.Mutex
}

var levelColors = map[LogLevel]*color.Color{
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// NewConsoleLogger creates the console tier writing to stdout
func NewConsoleLogger(config *Config) *ConsoleLogger {
	cl := &ConsoleLogger{
		config: config,
		out:    os.Stdout,
	}

	if config.Format == FormatJSON {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(config.Level),
		})
		cl.slogger = slog.New(handler)
	}

	return cl
}

func (cl *ConsoleLogger) log(entry *LogEntry) {
	if cl.slogger != nil {
		attrs := make([]interface{}, 0, 2+len(entry.Fields)*2)
		if entry.Component != "" {
			attrs = append(attrs, "component", string(entry.Component))
		}
		for k, v := range entry.Fields {
			attrs = append(attrs, k, v)
		}
		switch entry.Level {
		case LevelDebug:
			cl.slogger.Debug(entry.Message, attrs...)
		case LevelWarn:
			cl.slogger.Warn(entry.Message, attrs...)
		case LevelError:
			cl.slogger.Error(entry.Message, attrs...)
		default:
			cl.slogger.Info(entry.Message, attrs...)
		}
		return
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	fmt.Fprintf(cl.out, "%s %s", entry.Timestamp, cl.levelTag(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(cl.out, " [%s]", entry.Component)
	}
	fmt.Fprintf(cl.out, " %s", entry.Message)
	for k, v := range entry.Fields {
		fmt.Fprintf(cl.out, " %s=%v", k, v)
	}
	fmt.Fprintln(cl.out)
}

// levelTag renders the level label, colored when enabled
func (cl *ConsoleLogger) levelTag(level LogLevel) string {
	label := fmt.Sprintf("%-5s", levelLabel(level))
	if !cl.config.Console.Color {
		return label
	}
	if c, ok := levelColors[level]; ok {
		return c.Sprint(label)
	}
	return label
}

func levelLabel(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
