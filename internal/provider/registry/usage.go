package registry

import (
	"context"
	"fmt"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const percent = 100

// TrackUsage adds a usage report to the provider's and the global counters.
func (r *Registry) TrackUsage(ctx context.Context, providerID string, report domain.UsageReport) error {
	r.mu.Lock()
	e, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}

	e.provider.CostTracking.Add(report)
	r.global.Add(report)

	pending := []events.Payload{events.ProviderUsageTrackedPayload{
		ProviderID:  providerID,
		Tokens:      report.Tokens,
		Cost:        report.Cost,
		SessionCost: e.provider.CostTracking.SessionCost,
		TotalCost:   e.provider.CostTracking.TotalCost,
	}}
	pending = append(pending, r.limitWarningsLocked()...)
	r.mu.Unlock()

	r.publish(ctx, pending...)
	return nil
}

// limitWarningsLocked must be called with r.mu held. Each limit type warns once per session.
func (r *Registry) limitWarningsLocked() []events.Payload {
	var pending []events.Payload

	check := func(kind string, current, limit float64) {
		if limit <= 0 || r.warned[kind] || current < limit*r.cfg.CostWarningRatio {
			return
		}
		r.warned[kind] = true
		pending = append(pending, events.CostLimitWarningPayload{
			Type:       kind,
			Current:    current,
			Limit:      limit,
			Percentage: current / limit * percent,
		})
	}

	check(events.LimitTypeCost, r.global.SessionCost, r.cfg.SessionCostLimit)
	check(events.LimitTypeTokens, float64(r.global.SessionTokens), float64(r.cfg.SessionTokenLimit))

	return pending
}

// ResetSessionUsage zeroes every session counter and re-arms the limit warnings.
func (r *Registry) ResetSessionUsage(ctx context.Context) {
	r.mu.Lock()
	for _, e := range r.entries {
		e.provider.CostTracking.ResetSession()
	}
	r.global.ResetSession()
	clear(r.warned)
	r.mu.Unlock()

	observability.FromContext(ctx).Info("session usage reset")
}

// GlobalCostTracking returns the aggregate counters across all providers.
func (r *Registry) GlobalCostTracking() domain.CostTracking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}
