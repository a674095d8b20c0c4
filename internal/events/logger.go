package events

import (
	"context"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// LoggerOwner tags the event logger's subscription.
const LoggerOwner = "event-logger"

//nolint:gochecknoglobals // Fixed set of events that need operator attention
var warnEvents = map[Name]bool{
	CostLimitWarning:         true,
	ProviderSwitchWarning:    true,
	ProviderAutoSwitchFailed: true,
}

// AttachLogger writes every bus event to the structured log. Warnings about
// cost limits and failed or risky switches are logged at warn level, the rest
// at debug.
func AttachLogger(b *Bus) Unsubscribe {
	return b.SubscribeAll(func(ctx context.Context, evt Event) {
		logger := observability.FromContext(ctx)
		fields := []observability.Field{
			observability.String("event", string(evt.Name)),
			observability.String("event_id", evt.ID),
			observability.Any("data", evt.Data),
		}

		if warnEvents[evt.Name] {
			logger.Warn("engine event", fields...)
			return
		}
		logger.Debug("engine event", fields...)
	}, LoggerOwner)
}
