package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// StateKey is the persistence key of the registry state.
const StateKey = "provider-registry"

type providerState struct {
	Model        string              `json:"model"`
	CostTracking domain.CostTracking `json:"costTracking"`
}

type persistedState struct {
	ActiveID      string                   `json:"activeProvider"`
	Providers     map[string]providerState `json:"providers"`
	SwitchHistory []domain.SwitchRecord    `json:"switchHistory"`
	Global        domain.CostTracking      `json:"globalCostTracking"`
}

// Save writes cost tracking, selected models, the active pointer and the switch history.
func (r *Registry) Save(ctx context.Context, store domain.Persistence) error {
	r.mu.RLock()
	state := persistedState{
		ActiveID:      r.activeID,
		Providers:     make(map[string]providerState, len(r.entries)),
		SwitchHistory: r.history,
		Global:        r.global,
	}
	for id, e := range r.entries {
		state.Providers[id] = providerState{
			Model:        e.provider.Model,
			CostTracking: e.provider.CostTracking,
		}
	}
	data, err := json.Marshal(state)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode registry state: %w", err)
	}

	if err := store.Set(ctx, StateKey, data); err != nil {
		observability.FromContext(ctx).Error("failed to save registry state", observability.Error(err))
		return fmt.Errorf("failed to save registry state: %w", err)
	}

	return nil
}

// Restore loads state written by Save. Session counters start at zero;
// entries for unregistered providers are ignored. Missing, unreadable or
// corrupt state leaves the registry as registered and is only logged.
func (r *Registry) Restore(ctx context.Context, store domain.Persistence) error {
	data, err := store.Get(ctx, StateKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		observability.FromContext(ctx).Error("failed to load registry state, starting fresh", observability.Error(err))
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		observability.FromContext(ctx).Error("failed to decode registry state, starting fresh", observability.Error(err))
		return nil
	}

	r.mu.Lock()
	for id, saved := range state.Providers {
		e, ok := r.entries[id]
		if !ok {
			continue
		}
		e.provider.CostTracking = saved.CostTracking
		e.provider.CostTracking.ResetSession()
		if e.provider.HasModel(saved.Model) {
			e.provider.Model = saved.Model
		}
	}

	r.global = state.Global
	r.global.ResetSession()

	r.history = r.history[:0]
	for _, record := range state.SwitchHistory {
		if r.knownOrEmptyLocked(record.From) && r.knownOrEmptyLocked(record.To) {
			r.history = append(r.history, record)
		}
	}
	if overflow := len(r.history) - r.cfg.SwitchHistoryLimit; overflow > 0 {
		r.history = r.history[overflow:]
	}

	var pending []events.Payload
	if _, ok := r.entries[state.ActiveID]; ok && state.ActiveID != r.activeID {
		pending = append(pending, events.ActiveProviderChangedPayload{
			ProviderID:       state.ActiveID,
			PreviousProvider: r.activeID,
			Reason:           "restored",
		})
		r.activeID = state.ActiveID
	}
	r.mu.Unlock()

	r.publish(ctx, pending...)
	return nil
}

func (r *Registry) knownOrEmptyLocked(id string) bool {
	if id == "" {
		return true
	}
	_, ok := r.entries[id]
	return ok
}
