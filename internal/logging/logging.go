// Package logging provides structured logging helpers shared by all
// components.
//
// Rules:
//   - Loggers are dependency-injected; no component reads or writes the
//     global slog default.
//   - A component scopes its logger once, at construction, with
//     .With("component", <name>).
//   - A nil logger is always acceptable; Default turns it into a discard
//     logger.
//
// Output format, level, and destination are decided in main() only.
// Log points are lifecycle boundaries and error paths, not inner loops.
package logging

import (
	"context"
	"log/slog"
)

// discardHandler drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that produces no output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger if it is non-nil, else a discard logger.
// Standard usage at the top of a constructor:
//
//	logger = logging.Default(logger).With("component", "playlist-layer")
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
