// Package logger provides structured logging functionality
package logger

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger wraps slog.Logger for application-wide logging
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Output io.Writer // defaults to stdout
	Level  string    // debug, info, warn, error
	Format string    // text, json, pretty
}

// New creates a new structured logger
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "pretty":
		handler = charmlog.NewWithOptions(out, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(level),
		})
	default:
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a component attribute
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With("component", component),
	}
}

// WithTask returns a logger scoped to one download task
func (l *Logger) WithTask(taskID string) *Logger {
	return &Logger{
		Logger: l.With("task_id", taskID),
	}
}

// WithTrack returns a logger with track context attributes
func (l *Logger) WithTrack(trackNumber int, title string) *Logger {
	return &Logger{
		Logger: l.With("track_number", trackNumber, "track_title", title),
	}
}

// Default returns a default logger for quick usage
func Default() *Logger {
	return New(Config{
		Level:  "info",
		Format: "text",
	})
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
