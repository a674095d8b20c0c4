package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// SwitchProvider binds a conversation to another provider and records the
// switch on the conversation. An empty modelID selects the provider's
// current model.
func (s *Store) SwitchProvider(ctx context.Context, conversationID, providerID, modelID, reason string) (domain.SwitchRecord, error) {
	if s.directory != nil && !s.directory.HasProvider(providerID) {
		return domain.SwitchRecord{}, fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}
	if modelID == "" {
		modelID = s.providerModel(providerID)
	}

	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.SwitchRecord{}, notFound(conversationID)
	}

	now := s.now()
	state := &conv.SessionState
	record := domain.SwitchRecord{
		ID:             uuid.NewString(),
		Timestamp:      now,
		From:           state.CurrentProvider,
		To:             providerID,
		Reason:         reason,
		ConversationID: conversationID,
		ContextSnapshot: domain.SwitchSnapshot{
			FromModel:    state.CurrentModel,
			ToModel:      modelID,
			MessageCount: len(conv.Messages),
		},
	}

	state.ProviderHistory = append(state.ProviderHistory, record)
	if overflow := len(state.ProviderHistory) - providerHistoryLimit; overflow > 0 {
		state.ProviderHistory = append(state.ProviderHistory[:0:0], state.ProviderHistory[overflow:]...)
	}
	state.CurrentProvider = providerID
	state.CurrentModel = modelID
	state.Pinned = true
	conv.Settings.Provider = providerID
	conv.Settings.Model = modelID
	conv.Metadata.UpdatedAt = now
	s.mu.Unlock()

	observability.FromContext(ctx).Info("conversation provider switched",
		observability.String("conversation_id", conversationID),
		observability.String("from", record.From),
		observability.String("to", providerID),
		observability.String("model", modelID),
		observability.String("reason", reason))

	s.publish(ctx, events.ConversationProviderSwitchedPayload{
		ConversationID: conversationID,
		From:           record.From,
		To:             providerID,
		Model:          modelID,
		Reason:         reason,
	})
	return record, nil
}

// ContinueLast makes the most recently updated conversation current.
func (s *Store) ContinueLast(ctx context.Context) (domain.Conversation, error) {
	s.mu.Lock()
	var latest *domain.Conversation
	for _, conv := range s.conversations {
		if latest == nil || conv.Metadata.UpdatedAt.After(latest.Metadata.UpdatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		s.mu.Unlock()
		return domain.Conversation{}, domain.ErrNoRecentSession
	}

	s.enterLocked(latest)
	out := latest.Clone()
	s.mu.Unlock()

	observability.FromContext(ctx).Info("session continued",
		observability.String("conversation_id", out.ID))

	s.publish(ctx, events.SessionContinuedPayload{ConversationID: out.ID})
	return out, nil
}

// ResumeSession makes the given conversation current.
func (s *Store) ResumeSession(ctx context.Context, conversationID string) (domain.Conversation, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.Conversation{}, fmt.Errorf("session %s: %w", conversationID, domain.ErrSessionNotFound)
	}

	s.enterLocked(conv)
	out := conv.Clone()
	s.mu.Unlock()

	observability.FromContext(ctx).Info("session resumed",
		observability.String("conversation_id", conversationID))

	s.publish(ctx, events.SessionResumedPayload{ConversationID: conversationID})
	return out, nil
}

// enterLocked must be called with s.mu held. A resumed session starts a
// fresh session cost; totals are kept.
func (s *Store) enterLocked(conv *domain.Conversation) {
	conv.SessionState.ContinuationMode = true
	conv.Metadata.LastAccessedAt = s.now()
	conv.Metadata.CostTracking.Session = 0
	s.currentID = conv.ID
}
