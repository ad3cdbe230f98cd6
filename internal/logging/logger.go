// Package logging builds the zerolog loggers used across the node.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Debug modes accepted by the /debugmode command: 0 silent, 1 info, 2 verbose.
const (
	DebugSilent  = 0
	DebugInfo    = 1
	DebugVerbose = 2
)

// Config holds logger configuration options
type Config struct {
	// Format is "json" or "console"
	Format string
	// Level is "debug", "info", "warn" or "error"
	Level string
	// Output defaults to os.Stderr
	Output io.Writer
	// Component is attached to every entry when set
	Component string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Format: "console",
		Level:  "info",
		Output: os.Stderr,
	}
}

// New creates a zerolog logger from cfg.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger(), nil
}

// ParseLevel converts a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelForDebugMode maps a debug mode onto the logger level that shows it.
func LevelForDebugMode(mode int) zerolog.Level {
	switch {
	case mode <= DebugSilent:
		return zerolog.WarnLevel
	case mode == DebugInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
