// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// MaxValueLen caps string attribute values. Request payloads from
// misbehaving peers end up in logs and should not flood them.
const MaxValueLen = 100

// Options configures New.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a logger writing text or JSON records, correlated with the
// active trace when there is one.
func New(opts Options) (*slog.Logger, error) {
	var level slog.Level
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: sanitize,
	}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		h = slog.NewTextHandler(w, hopts)
	case FormatJSON:
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(NewTraceHandler(h)), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Error returns an slog.Attr for an error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// StackKey is left uncut by the logger.
const StackKey = "stack"

func sanitize(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || a.Key == slog.MessageKey || a.Key == StackKey {
		return a
	}
	if s := a.Value.String(); len(s) > MaxValueLen {
		a.Value = slog.StringValue(s[:MaxValueLen] + "...[truncated]")
	}
	return a
}
