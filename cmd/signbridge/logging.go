package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"

	"github.com/MrWong99/signbridge/internal/config"
)

// parseLevel maps a config log level to its slog equivalent.
func parseLevel(l config.LogLevel) (slog.Level, error) {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug, nil
	case config.LogInfo, "":
		return slog.LevelInfo, nil
	case config.LogWarn:
		return slog.LevelWarn, nil
	case config.LogError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", l)
	}
}

// newHandler returns the slog handler for format. The level is read from
// level on every record, so it can change while the process runs.
func newHandler(format string, w io.Writer, level *slog.LevelVar) (slog.Handler, error) {
	switch format {
	case "text", "":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
	case "pretty":
		l := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.DebugLevel,
		})
		return leveled{Handler: l, level: level}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text, json or pretty)", format)
	}
}

// leveled gates a handler that has no dynamic level of its own.
type leveled struct {
	slog.Handler
	level *slog.LevelVar
}

func (h leveled) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() && h.Handler.Enabled(ctx, l)
}

func (h leveled) WithAttrs(attrs []slog.Attr) slog.Handler {
	return leveled{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h leveled) WithGroup(name string) slog.Handler {
	return leveled{Handler: h.Handler.WithGroup(name), level: h.level}
}
