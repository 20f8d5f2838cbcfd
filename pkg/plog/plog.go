// Package plog provides the global leveled logger for gtdsync.
//
// It is a thin wrapper around log/slog with one twist: records at INFO and
// below are written to stdout, while WARNING and above go to stderr. This
// keeps progress output separable from diagnostics when the tool runs under
// a scheduler or the desktop app.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Log levels. LevelNotice sits between Info and Warn and is used for
// per-step progress lines (ARCHIVE, ENCRYPT, COMMIT, ...).
const (
	LevelDebug  = slog.LevelDebug
	LevelInfo   = slog.LevelInfo
	LevelNotice = slog.Level(2)
	LevelWarn   = slog.LevelWarn
	LevelError  = slog.LevelError
)

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var defaultLogger atomic.Pointer[slog.Logger]
var minLevel = new(slog.LevelVar) // Defaults to Info.

// levelNames maps the user-facing level strings to slog levels.
var levelNames = map[string]slog.Level{
	"debug":  LevelDebug,
	"info":   LevelInfo,
	"notice": LevelNotice,
	"warn":   LevelWarn,
	"error":  LevelError,
}

// replaceLevelName renames the custom NOTICE level in the output, which slog
// would otherwise render as "INFO+2".
func replaceLevelName(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
			a.Value = slog.StringValue("NOTICE")
		}
	}
	return a
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       minLevel,
		ReplaceAttr: replaceLevelName,
	}
}

// LevelFromString parses a level name. Unknown names fall back to Info so a
// typo in a settings file degrades loudly rather than silencing the log.
func LevelFromString(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lvl
	}
	Warn("Unknown log level, falling back to 'info'", "level", name)
	return LevelInfo
}

// SetLevel sets the minimum level for the global logger.
func SetLevel(level slog.Level) {
	minLevel.Set(level)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// All levels are written to the provided writer.
func SetOutput(w io.Writer) {
	defaultLogger.Store(slog.New(slog.NewTextHandler(w, handlerOptions())))
}

func init() {
	stdoutHandler := slog.NewTextHandler(os.Stdout, handlerOptions())

	// The stderr handler keeps its own floor so warnings are never lost to
	// a raised stdout level.
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       LevelWarn,
		ReplaceAttr: replaceLevelName,
	})

	defaultLogger.Store(slog.New(&LevelDispatchHandler{
		stdoutHandler: stdoutHandler,
		stderrHandler: stderrHandler,
	}))
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Notice logs a per-step progress message.
func Notice(msg string, args ...any) {
	defaultLogger.Load().Log(context.Background(), LevelNotice, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
