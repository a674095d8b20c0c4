package conversation

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// AddMessage appends a message and updates token and cost aggregates, both
// overall and for the attributed provider. Past CompactionThreshold the
// history is compacted; otherwise it is trimmed to MaxHistorySize.
func (s *Store) AddMessage(ctx context.Context, conversationID string, input domain.MessageInput) (domain.Message, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.Message{}, notFound(conversationID)
	}

	now := s.now()
	msg := domain.Message{
		ID:        uuid.NewString(),
		Role:      input.Role,
		Content:   input.Content,
		Timestamp: now,
		Metadata:  input.Metadata,
	}
	if msg.Metadata.Provider == "" {
		msg.Metadata.Provider = conv.SessionState.CurrentProvider
	}
	if msg.Metadata.Model == "" && msg.Role == domain.RoleAssistant {
		msg.Metadata.Model = conv.SessionState.CurrentModel
	}

	if msg.Role == domain.RoleUser && conv.Title == defaultTitle && !hasUserMessage(conv) {
		conv.Title = titleFrom(msg.Content)
	}

	conv.Messages = append(conv.Messages, msg)
	account(conv, msg, now)
	conv.Metadata.UpdatedAt = now
	conv.Metadata.LastAccessedAt = now

	pending := []events.Payload{events.ConversationMessageAddedPayload{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Role:           msg.Role,
	}}

	if s.cfg.CompactionThreshold > 0 && len(conv.Messages) > s.cfg.CompactionThreshold {
		if summary, compacted := s.compactLocked(conv, ""); compacted {
			pending = append(pending, events.ConversationCompactedPayload{
				ConversationID: conversationID,
				Summary:        summary,
			})
		}
	}
	// Compaction keeps ContextWindow messages, which may still exceed the cap.
	if drop := len(conv.Messages) - s.cfg.MaxHistorySize; drop > 0 {
		conv.Messages = append(conv.Messages[:0:0], conv.Messages[drop:]...)
	}
	s.mu.Unlock()

	s.publish(ctx, pending...)
	return msg, nil
}

func account(conv *domain.Conversation, msg domain.Message, now time.Time) {
	tokens := msg.Metadata.Tokens
	meta := &conv.Metadata
	meta.MessageCount++
	meta.TokenUsage.Input += tokens.Input
	meta.TokenUsage.Output += tokens.Output
	meta.TokenUsage.Total += tokens.Total()
	meta.CostTracking.Session += msg.Metadata.Cost
	meta.CostTracking.Total += msg.Metadata.Cost

	provider := msg.Metadata.Provider
	if provider == "" {
		return
	}
	if meta.CostTracking.ByProvider == nil {
		meta.CostTracking.ByProvider = make(map[string]float64)
	}
	meta.CostTracking.ByProvider[provider] += msg.Metadata.Cost

	if meta.ProviderStats == nil {
		meta.ProviderStats = make(map[string]*domain.ProviderStats)
	}
	stats, ok := meta.ProviderStats[provider]
	if !ok {
		stats = &domain.ProviderStats{Models: make(map[string]int)}
		meta.ProviderStats[provider] = stats
	}
	stats.MessageCount++
	stats.LastUsedAt = now
	stats.TotalCost += msg.Metadata.Cost
	stats.TotalTokens += tokens.Total()
	if msg.Metadata.Model != "" {
		stats.Models[msg.Metadata.Model]++
	}
}

func hasUserMessage(conv *domain.Conversation) bool {
	for _, m := range conv.Messages {
		if m.Role == domain.RoleUser {
			return true
		}
	}
	return false
}

func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if title == "" {
		return defaultTitle
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength-3]) + "..."
	}
	return title
}

// Recent returns up to n trailing messages. A non-positive n returns all of them.
func (s *Store) Recent(conversationID string, n int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, notFound(conversationID)
	}

	messages := conv.Messages
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return slices.Clone(messages), nil
}

// Clear drops every message and resets the accounting. Identity, title,
// settings and the bound provider survive.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return notFound(conversationID)
	}

	now := s.now()
	conv.Messages = nil
	conv.Metadata = domain.ConversationMetadata{
		CreatedAt:      conv.Metadata.CreatedAt,
		UpdatedAt:      now,
		LastAccessedAt: now,
		CostTracking:   domain.ConversationCost{ByProvider: make(map[string]float64)},
		ProviderStats:  make(map[string]*domain.ProviderStats),
	}
	s.mu.Unlock()

	observability.FromContext(ctx).Info("conversation cleared",
		observability.String("conversation_id", conversationID))

	s.publish(ctx, events.ConversationClearedPayload{ConversationID: conversationID})
	return nil
}
