// Package logging provides the gateway's subsystem-tagged logger sink.
//
// Unlike a global logging singleton, every core component receives its own
// *Logger through its constructor: the gateway's core consumes a logger sink
// as an injected dependency, never a package-level default.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with a fixed subsystem tag, mirroring the
// subsystem-tagged call style used throughout the reference aggregator
// ("Aggregator", "Aggregator-EventHandler", ...) but as an instance instead
// of a global function table.
type Logger struct {
	slog      *slog.Logger
	subsystem string
}

// New builds a root Logger writing to out at the given minimum level.
func New(out io.Writer, level slog.Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(h)}
}

// Nop returns a Logger that discards everything, useful as a test default.
func Nop() *Logger {
	return New(io.Discard, slog.LevelError+1)
}

// With returns a child Logger scoped to a named subsystem, e.g.
// logger.With("router") or logger.With("backend.alpha").
func (l *Logger) With(subsystem string) *Logger {
	sub := subsystem
	if l.subsystem != "" {
		sub = l.subsystem + "." + subsystem
	}
	return &Logger{slog: l.slog, subsystem: sub}
}

func (l *Logger) attrs(extra ...any) []any {
	if l.subsystem == "" {
		return extra
	}
	return append([]any{"subsystem", l.subsystem}, extra...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, l.attrs(args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, l.attrs(args...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, l.attrs(args...)...)
}

func (l *Logger) Error(err error, msg string, args ...any) {
	a := l.attrs(args...)
	if err != nil {
		a = append(a, "error", err.Error())
	}
	l.slog.Error(msg, a...)
}

// Event logs a structured audit-style event for security/lifecycle-relevant
// actions (backend registration, circuit transitions, auth checks).
func (l *Logger) Event(action, outcome string, args ...any) {
	a := append([]any{"action", action, "outcome", outcome}, args...)
	l.slog.LogAttrs(context.Background(), slog.LevelInfo, "event", slogAttrs(a)...)
}

func slogAttrs(kv []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		attrs = append(attrs, slog.Any(key, kv[i+1]))
	}
	return attrs
}
