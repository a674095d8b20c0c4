package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// SwitchActiveProvider moves the active pointer to providerID. Switching to a
// provider that is not connected is allowed and emits a warning first.
// conversationID is forwarded on active-provider-changed so the conversation
// store can bind that conversation.
func (r *Registry) SwitchActiveProvider(
	ctx context.Context,
	providerID, reason, conversationID string,
) (domain.SwitchRecord, error) {
	r.mu.Lock()
	target, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return domain.SwitchRecord{}, fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}

	previous := r.activeID
	record := domain.SwitchRecord{
		ID:             uuid.NewString(),
		Timestamp:      time.Now(),
		From:           previous,
		To:             providerID,
		Reason:         reason,
		ConversationID: conversationID,
		ContextSnapshot: domain.SwitchSnapshot{
			ToStatus: target.provider.Status,
			ToModel:  target.provider.Model,
		},
	}
	if from, exists := r.entries[previous]; exists {
		record.ContextSnapshot.FromStatus = from.provider.Status
		record.ContextSnapshot.FromModel = from.provider.Model
	}

	r.history = append(r.history, record)
	if overflow := len(r.history) - r.cfg.SwitchHistoryLimit; overflow > 0 {
		r.history = slices.Delete(r.history, 0, overflow)
	}
	r.activeID = providerID

	var pending []events.Payload
	if target.provider.Status != domain.StatusConnected {
		pending = append(pending, events.ProviderSwitchWarningPayload{
			ProviderID: providerID,
			Status:     target.provider.Status,
			Reason:     domain.ErrProviderNotReady.Error(),
		})
	}
	pending = append(pending,
		events.ActiveProviderChangedPayload{
			ProviderID:       providerID,
			PreviousProvider: previous,
			Reason:           reason,
			ConversationID:   conversationID,
		},
		events.ProviderActivatedPayload{ProviderID: providerID},
	)
	if previous != "" {
		pending = append(pending, events.ProviderDeactivatedPayload{ProviderID: previous})
	}
	r.mu.Unlock()

	observability.FromContext(ctx).Info("active provider switched",
		observability.String("from", previous),
		observability.String("to", providerID),
		observability.String("reason", reason))

	r.publish(ctx, pending...)

	return record, nil
}

// AttemptAutoSwitch moves away from failedID to the best failover candidate.
// It returns the new active provider id.
func (r *Registry) AttemptAutoSwitch(ctx context.Context, failedID, reason string) (string, error) {
	r.mu.RLock()
	selector := r.selector
	r.mu.RUnlock()

	target, err := selector.Select(r.List(), failedID)
	if err != nil {
		observability.FromContext(observability.WithProvider(ctx, failedID)).Warn("automatic provider switch failed",
			observability.Error(err))
		r.publish(ctx, events.ProviderAutoSwitchFailedPayload{
			ProviderID: failedID,
			Reason:     err.Error(),
		})
		return "", fmt.Errorf("auto switch from %s: %w", failedID, err)
	}

	if _, err := r.SwitchActiveProvider(ctx, target, reason, ""); err != nil {
		return "", err
	}

	r.publish(ctx, events.ProviderAutoSwitchedPayload{
		From:   failedID,
		To:     target,
		Reason: reason,
	})

	return target, nil
}

// SwitchHistory returns the retained switch records, oldest first.
func (r *Registry) SwitchHistory() []domain.SwitchRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.history)
}
