package logger

import (
	"log/slog"
	"os"
)

// NewJSONLogger returns a slog logger writing JSON records to stdout.
func NewJSONLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
