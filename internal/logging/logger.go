package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog logger at the provided level tagged with the app name.
// Development uses the text handler, everything else JSON. An invalid level
// falls back to info.
func New(level, app string, development bool) *slog.Logger {
	return newWithWriter(os.Stdout, level, app, development)
}

func newWithWriter(w io.Writer, level, app string, development bool) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if development {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	if app != "" {
		logger = logger.With(slog.String("app", app))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
