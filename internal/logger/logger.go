// Package logger provides structured logging setup for CodeForge.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/CodeForge/internal/config"
)

// New creates a *slog.Logger from the given Logging config. Output is JSON
// to stdout with a "service" attribute on every record. When cfg.Async is
// set, writes are buffered through an AsyncHandler so high-volume agent
// poll/report traffic never blocks on stdout; the returned Closer must be
// flushed at shutdown (a synchronous logger returns a no-op Closer).
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		async := NewAsyncHandler(handler, cfg.AsyncBuffer, cfg.AsyncWorkers)
		handler = async
		closer = async
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
