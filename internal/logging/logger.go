package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the application logger.
type Options struct {
	Level  string
	App    string
	Env    string
	Output io.Writer
}

// New creates a JSON slog logger tagged with the app name and environment.
// An invalid level falls back to info, a nil Output to stdout.
func New(opts Options) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	if opts.App != "" {
		logger = logger.With(slog.String("app", opts.App))
	}
	if opts.Env != "" {
		logger = logger.With(slog.String("env", opts.Env))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
