// Package logging provides structured JSON logging via log/slog, writing to
// a per-process log file under <gitdir>/ai/logs/. Every entry carries
// context-propagated attributes (component, hook, agent) the way this tool
// family's hook logging does, so a single git operation's log lines can be
// correlated across the several hooks it invokes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gitattr/gitattr/cmd/gitattr/cli/paths"
)

type ctxKey string

const (
	ctxComponent ctxKey = "component"
	ctxHook      ctxKey = "hook"
	ctxAgent     ctxKey = "agent"
)

var (
	mu        sync.Mutex
	logger    *slog.Logger
	closer    io.Closer
	levelVar  slog.LevelVar
)

// Init opens <gitdir>/ai/logs/<pid>.log for structured JSON logging. On any
// failure to create the file it falls back to stderr, since logging must
// never be the reason a hook fails.
func Init(gitDir string) {
	mu.Lock()
	defer mu.Unlock()

	SetLevel(os.Getenv("GITATTR_LOG_LEVEL"))

	logPath := paths.LogPath(gitDir, os.Getpid())
	if err := paths.EnsureDir(dirOf(logPath)); err != nil {
		fallbackToStderr()
		return
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fallbackToStderr()
		return
	}
	closer = f
	logger = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: &levelVar}))
}

func fallbackToStderr() {
	closer = nil
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar}))
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// SetLevel parses level ("debug", "info", "warn", "error") and applies it;
// unrecognized or empty values default to info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// Close releases the underlying log file, if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	logger = nil
}

func get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return logger
}

// WithComponent returns a context carrying component for later log calls.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ctxComponent, component)
}

// WithHook returns a context carrying the hook name.
func WithHook(ctx context.Context, hook string) context.Context {
	return context.WithValue(ctx, ctxHook, hook)
}

// WithAgent returns a context carrying the agent tool name.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, ctxAgent, agent)
}

func attrsFromContext(ctx context.Context) []any {
	var attrs []any
	if v, ok := ctx.Value(ctxComponent).(string); ok && v != "" {
		attrs = append(attrs, "component", v)
	}
	if v, ok := ctx.Value(ctxHook).(string); ok && v != "" {
		attrs = append(attrs, "hook", v)
	}
	if v, ok := ctx.Value(ctxAgent).(string); ok && v != "" {
		attrs = append(attrs, "agent", v)
	}
	return attrs
}

func log(ctx context.Context, level slog.Level, msg string, args ...any) {
	all := append(attrsFromContext(ctx), args...)
	get().Log(ctx, level, msg, all...)
}

func Debug(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelDebug, msg, args...) }
func Info(ctx context.Context, msg string, args ...any)  { log(ctx, slog.LevelInfo, msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { log(ctx, slog.LevelWarn, msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { log(ctx, slog.LevelError, msg, args...) }

// LogDuration logs msg at Info level with a "duration_ms" attribute
// computed from start, for timing hook handler completion.
func LogDuration(ctx context.Context, msg string, start time.Time, args ...any) {
	all := append(args, "duration_ms", time.Since(start).Milliseconds())
	log(ctx, slog.LevelInfo, msg, all...)
}

// FormatDeadlineExceeded is a small helper for the standard WARN message a
// hook logs when it hits its deadline (spec §7 ErrHookDeadline).
func FormatDeadlineExceeded(hook string, deadline time.Duration) string {
	return fmt.Sprintf("hook %s exceeded deadline of %s, exiting 0", hook, deadline)
}
