package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	charm "github.com/charmbracelet/log"
)

// Logger defines the interface for logging throughout the application.
// Different implementations can be used for different contexts (console, silent, etc.)
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Level names accepted by --log-level.
const (
	LevelWarning = "WARNING"
	LevelInfo    = "INFO"
	LevelDebug   = "DEBUG"
)

// ParseLevel maps a --log-level value to a charm log level. Matching is
// case-insensitive.
func ParseLevel(s string) (charm.Level, error) {
	switch strings.ToUpper(s) {
	case LevelWarning:
		return charm.WarnLevel, nil
	case LevelInfo, "":
		return charm.InfoLevel, nil
	case LevelDebug:
		return charm.DebugLevel, nil
	default:
		return charm.InfoLevel, fmt.Errorf("invalid log level %q (want WARNING, INFO or DEBUG)", s)
	}
}

// ConsoleLogger writes human-readable logs to stderr.
// Used for normal operation and debugging.
type ConsoleLogger struct {
	log *charm.Logger
}

// NewConsoleLogger logs to stderr at INFO.
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerWithLevel(os.Stderr, charm.InfoLevel)
}

// NewConsoleLoggerWithLevel logs to w at level. At debug level each line
// carries a timestamp and level prefix; otherwise only the message is shown.
func NewConsoleLoggerWithLevel(w io.Writer, level charm.Level) *ConsoleLogger {
	debug := level <= charm.DebugLevel
	l := charm.NewWithOptions(w, charm.Options{
		Level:           level,
		ReportTimestamp: debug,
		TimeFormat:      "2006-01-02T15:04:05-0700",
	})
	if !debug {
		styles := charm.DefaultStyles()
		for lvl := range styles.Levels {
			delete(styles.Levels, lvl)
		}
		l.SetStyles(styles)
	}
	return &ConsoleLogger{log: l}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	c.log.Infof(msg, args...)
}

func (c *ConsoleLogger) Warn(msg string, args ...interface{}) {
	c.log.Warnf(msg, args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	c.log.Errorf(msg, args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	c.log.Debugf(msg, args...)
}

// SilentLogger discards all log messages.
// Used when running in TUI or MCP mode to keep the terminal or stdio clean.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Warn(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
