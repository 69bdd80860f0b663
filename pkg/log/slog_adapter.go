package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints protocol events through an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
		slog.String("direction", event.Direction.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Data != nil:
		attrs = append(attrs, slog.Int("size", event.Data.Size))
		if event.Data.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
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
	case event.Schedule != nil:
		attrs = append(attrs,
			slog.String("action", event.Schedule.Action.String()),
			slog.String("address", event.Schedule.Address),
		)
		if !event.Schedule.Due.IsZero() {
			attrs = append(attrs, slog.Time("due", event.Schedule.Due))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error", event.Error.Message),
			slog.String("context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("errno", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "link event", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
