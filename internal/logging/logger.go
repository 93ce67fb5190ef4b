// Package logging builds the structured loggers used throughout granc.
package logging

import (
	"io"
	"log/slog"
)

// New builds a JSON-structured logger writing to w. When debug is true the
// logger runs at DEBUG level and attaches source locations; otherwise it
// runs at INFO level.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})

	return slog.New(handler)
}

// Nop returns a logger that discards everything it's given. Components take
// a *slog.Logger via constructor injection and fall back to this when the
// caller doesn't supply one.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))
}

// TruncateForLog caps long request/response bodies before they hit a log
// line. Descriptor-driven JSON bodies can run to megabytes; nobody wants
// that in a log file.
func TruncateForLog(s string) string {
	const maxLogBodyLen = 2048
	if len(s) <= maxLogBodyLen {
		return s
	}
	return s[:maxLogBodyLen] + truncateSuffix(len(s))
}

func truncateSuffix(totalLen int) string {
	return "... (" + itoa(totalLen) + " bytes total)"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
