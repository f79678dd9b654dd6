package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls how the process-wide logger is built.
type Options struct {
	// Debug lowers the level to slog.LevelDebug.
	Debug bool

	// Format is "text" (default) or "json".
	Format string

	// Output defaults to os.Stderr so that stdout stays free for the MCP stdio transport.
	Output io.Writer
}

// New builds a slog.Logger from the given options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Setup builds a logger and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}
