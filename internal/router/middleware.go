package router

import (
	"log/slog"
	"time"
)

// Middleware wraps a handler.
type Middleware func(HandlerFunc) HandlerFunc

// Logging logs every handler invocation at debug level.
func Logging(logger *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) string {
			body := next(c)
			logger.Debug("handler invoked",
				slog.String("route", c.Route),
				slog.String("path", c.Path),
				slog.String("content_type", c.ContentType().MIME()),
				slog.Int("body_bytes", len(body)),
			)
			return body
		}
	}
}

// SlowHandler warns when a handler runs longer than threshold. Handlers
// share the loop with sensor sampling and display refresh, so anything
// slow stalls the whole device.
func SlowHandler(logger *slog.Logger, threshold time.Duration, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) string {
			start := now()
			body := next(c)
			if d := now().Sub(start); d > threshold {
				logger.Warn("slow handler",
					slog.String("route", c.Route),
					slog.Duration("duration", d),
					slog.Duration("threshold", threshold),
				)
			}
			return body
		}
	}
}
