package utils

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a JSON structured logger writing to w.
func NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// SetupDefaultLogger installs a JSON logger as the process default. A nil
// writer means stdout.
func SetupDefaultLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := NewLogger(w)
	slog.SetDefault(logger)
	return logger
}
