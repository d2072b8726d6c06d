package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes core events to an slog.Logger.
// Useful for development when you want to see core events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Errors are logged at Warn
// level, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Transport != "" {
		attrs = append(attrs, slog.String("transport", event.Transport))
	}
	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}

	level := slog.LevelDebug

	// Add type-specific attributes
	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("component", event.StateChange.Component),
			slog.String("old_state", event.StateChange.From),
			slog.String("new_state", event.StateChange.To),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Retry != nil:
		attrs = append(attrs,
			slog.Int("attempt", event.Retry.Attempt),
			slog.Duration("delay", event.Retry.Delay),
		)
		if event.Retry.Breaker {
			attrs = append(attrs, slog.Bool("breaker", true))
		}
	case event.Queue != nil:
		attrs = append(attrs,
			slog.String("operation_id", event.Queue.OperationID),
			slog.String("status", event.Queue.Status),
		)
		if event.Queue.ResourceKey != "" {
			attrs = append(attrs, slog.String("resource", event.Queue.ResourceKey))
		}
		if event.Queue.RetryCount > 0 {
			attrs = append(attrs, slog.Int("retries", event.Queue.RetryCount))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("op", event.Error.Op),
			slog.String("error_msg", event.Error.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "corelink", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
