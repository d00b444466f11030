// Package logger provides structured logging helpers on top of log/slog for
// the progression core: a configured handler factory plus domain field
// constructors so call sites stay consistent about attribute names.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options configures the logger.
type Options struct {
	// Output defaults to os.Stdout.
	Output io.Writer

	// Level is the minimum level, parsed from config ("debug", "info", ...).
	Level string

	// JSON selects the JSON handler; text otherwise. Production deployments
	// use JSON for log aggregation.
	JSON bool
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds a slog.Logger from the options and installs it as the default.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// Domain field helpers keep attribute keys consistent across the core.

func PlayerID(uuid string) slog.Attr        { return slog.String("player_id", uuid) }
func EventKind(kind string) slog.Attr       { return slog.String("event_kind", kind) }
func EventSource(source string) slog.Attr   { return slog.String("source", source) }
func Amount(amount int64) slog.Attr         { return slog.Int64("amount", amount) }
func RankPosition(pos string) slog.Attr     { return slog.String("rank_position", pos) }
func ExternalID(id string) slog.Attr        { return slog.String("external_id", id) }
func Component(name string) slog.Attr       { return slog.String("component", name) }
func Operation(name string) slog.Attr       { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr     { return slog.String("latency", d.String()) }
func RetryCount(n int) slog.Attr            { return slog.Int("retries", n) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
