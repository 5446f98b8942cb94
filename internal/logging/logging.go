// Package logging builds the slog loggers handed to every component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Level picks the log level from the verbose flag, overridden by LOG_LEVEL.
func Level(verbose bool) slog.Level {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return level
}

// New returns a logger writing to stderr: coloured when stderr is a
// terminal, logfmt text otherwise.
func New(verbose bool) *slog.Logger {
	return NewWithWriter(os.Stderr, verbose, IsTerminal(os.Stderr))
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(w io.Writer, verbose, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: Level(verbose)}

	var handler slog.Handler
	if color {
		handler = NewColorHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
