package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful during development to see events on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level. Fatal error events are written at
// Error level.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Protocol != "" {
		attrs = append(attrs, slog.String("protocol", event.Protocol))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.IO != nil:
		attrs = append(attrs,
			slog.String("op", event.IO.Op),
			slog.Int("size", event.IO.Size),
		)
		if event.Direction == DirectionIn {
			attrs = append(attrs, slog.Int("status", int(event.IO.Status)))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_op", event.Error.Op),
			slog.String("error_msg", event.Error.Message),
			slog.Int("error_count", len(event.Error.Entries)),
			slog.Bool("fatal", event.Error.Fatal),
		)
		if event.Error.Fatal {
			level = slog.LevelError
		}
	}

	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
