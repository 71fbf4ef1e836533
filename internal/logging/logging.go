// Package logging provides the slog helpers shared by statuswatch components.
//
// Loggers are dependency-injected. Components accept a *slog.Logger, pass it
// through [Default] so a nil logger becomes a discard logger, and scope it once
// at construction with logger.With("component", name). Output format, level
// and destination are decided only by the command entry point via [New].
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Default returns logger, or a discard logger when logger is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// Options selects the handler built by [New].
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is json or text. Empty means json.
	Format string
}

// New builds the diagnostic logger writing to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	var level slog.Level
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(opts.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected json or text)", opts.Format)
	}
}
