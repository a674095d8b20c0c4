package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// StateKey is the persistence key of the store state.
const StateKey = "conversations"

type persistedState struct {
	CurrentID     string                `json:"currentConversationId"`
	Conversations []domain.Conversation `json:"conversations"`
}

// Save writes every conversation and the current pointer.
func (s *Store) Save(ctx context.Context, store domain.Persistence) error {
	s.mu.RLock()
	state := persistedState{
		CurrentID:     s.currentID,
		Conversations: make([]domain.Conversation, 0, len(s.conversations)),
	}
	for _, conv := range s.conversations {
		state.Conversations = append(state.Conversations, conv.Clone())
	}
	s.mu.RUnlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}

	if err := store.Set(ctx, StateKey, data); err != nil {
		observability.FromContext(ctx).Error("failed to save conversations", observability.Error(err))
		return fmt.Errorf("failed to save conversations: %w", err)
	}

	return nil
}

// Restore replaces the in-memory conversations with the saved ones. Missing,
// unreadable or corrupt state keeps the current conversations and is only logged.
func (s *Store) Restore(ctx context.Context, store domain.Persistence) error {
	data, err := store.Get(ctx, StateKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		observability.FromContext(ctx).Error("failed to load conversations, starting fresh", observability.Error(err))
		return nil
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		observability.FromContext(ctx).Error("failed to decode conversations, starting fresh", observability.Error(err))
		return nil
	}

	s.mu.Lock()
	s.conversations = make(map[string]*domain.Conversation, len(state.Conversations))
	for i := range state.Conversations {
		conv := state.Conversations[i]
		if conv.Metadata.CostTracking.ByProvider == nil {
			conv.Metadata.CostTracking.ByProvider = make(map[string]float64)
		}
		if conv.Metadata.ProviderStats == nil {
			conv.Metadata.ProviderStats = make(map[string]*domain.ProviderStats)
		}
		for _, stats := range conv.Metadata.ProviderStats {
			if stats.Models == nil {
				stats.Models = make(map[string]int)
			}
		}
		s.conversations[conv.ID] = &conv
	}
	s.currentID = ""
	if _, ok := s.conversations[state.CurrentID]; ok {
		s.currentID = state.CurrentID
	}
	pending := s.evictLocked()
	s.mu.Unlock()

	observability.FromContext(ctx).Info("conversations restored",
		observability.Int("count", len(state.Conversations)))

	s.publish(ctx, pending...)
	return nil
}
