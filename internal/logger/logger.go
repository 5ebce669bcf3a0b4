package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Options configures the default logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Out    io.Writer
}

// Setup installs a slog default logger built from opts and returns it.
func Setup(opts Options) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(opts.Out, hopts)
	} else {
		handler = slog.NewTextHandler(opts.Out, hopts)
	}

	l := slog.New(NewContextHandler(handler))
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
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

// ContextHandler adds the LogFields carried on the context to every record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetLogFields(ctx)
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	if fields.Project != "" {
		r.AddAttrs(slog.String("project", fields.Project))
	}
	if fields.IssueID != "" {
		r.AddAttrs(slog.String("issue_id", fields.IssueID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
