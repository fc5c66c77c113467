package main

import (
	"context"
	"log/slog"

	"github.com/tlsock/tlsock-go/pkg/errqueue"
	"github.com/tlsock/tlsock-go/pkg/transport"
)

// echoHandler writes every line back to the client until the stream ends.
// A final line without a newline is echoed as well.
func echoHandler(logger *slog.Logger) func(context.Context, *transport.Conn) {
	return func(ctx context.Context, c *transport.Conn) {
		logger.Debug("client connected", slog.String("conn", c.ID()), slog.Any("remote", c.RemoteAddr()))

		lines := 0
		for ctx.Err() == nil {
			status, line, err := c.ReadLine()
			if err != nil {
				logger.Debug("read failed", slog.String("conn", c.ID()), slog.Any("error", err))
				return
			}
			if len(line) > 0 {
				if _, err := c.Write(line); err != nil {
					logger.Debug("write failed", slog.String("conn", c.ID()), slog.Any("error", err))
					return
				}
				lines++
			}
			if status == transport.StatusNone {
				break
			}
		}
		logger.Debug("client done", slog.String("conn", c.ID()), slog.Int("lines", lines))
	}
}

// logErrors reports drained TLS errors through logger. It is registered
// as the "log" error callback.
func logErrors(logger *slog.Logger) transport.ErrorCallback {
	return func(c *transport.Conn, op string, errs []errqueue.Entry, fatal bool) {
		id := "listener"
		if c != nil {
			id = c.ID()
		}
		level := slog.LevelWarn
		if fatal {
			level = slog.LevelError
		}
		for _, e := range errs {
			logger.Log(context.Background(), level, "tls error",
				slog.String("conn", id),
				slog.String("op", op),
				slog.String("entry", e.String()),
			)
		}
	}
}
