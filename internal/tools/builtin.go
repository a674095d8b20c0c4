package tools

import (
	"context"
	"fmt"
	"time"
)

// CurrentTimeName is the name of the built-in clock tool.
const CurrentTimeName = "current_time"

// CurrentTime returns a tool reporting the current time, optionally in an
// IANA time zone.
func CurrentTime(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}

	return Tool{
		Name:        CurrentTimeName,
		Description: "Returns the current date and time in RFC 3339 format.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone name such as Europe/Rome. Defaults to UTC.",
				},
			},
			"additionalProperties": false,
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			zone, _ := args["timezone"].(string)
			if zone == "" {
				zone = "UTC"
			}
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return nil, fmt.Errorf("unknown timezone %q: %w", zone, err)
			}

			return map[string]any{
				"time":     now().In(loc).Format(time.RFC3339),
				"timezone": loc.String(),
			}, nil
		},
	}
}

// RegisterBuiltins adds the built-in tools.
func RegisterBuiltins(r *Registry) error {
	return r.Register(CurrentTime(nil))
}
