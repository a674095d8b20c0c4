package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const (
	summaryTopics     = 3
	summaryTopicChars = 80
)

// Compact replaces everything but the last ContextWindow messages with one
// system summary. Conversations with fewer than five messages, or that
// already fit in the window, are returned unchanged.
func (s *Store) Compact(ctx context.Context, conversationID, instructions string) (domain.Conversation, error) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return domain.Conversation{}, notFound(conversationID)
	}

	summary, compacted := s.compactLocked(conv, instructions)
	out := conv.Clone()
	s.mu.Unlock()

	if compacted {
		observability.FromContext(ctx).Info("conversation compacted",
			observability.String("conversation_id", conversationID),
			observability.Int("messages", len(out.Messages)),
			observability.Int("compaction_count", out.Metadata.CompactionCount))
		s.publish(ctx, events.ConversationCompactedPayload{
			ConversationID: conversationID,
			Summary:        summary,
		})
	}

	return out, nil
}

// compactLocked must be called with s.mu held.
func (s *Store) compactLocked(conv *domain.Conversation, instructions string) (string, bool) {
	if len(conv.Messages) < minCompactMessages || len(conv.Messages) <= s.cfg.ContextWindow {
		return "", false
	}

	cut := len(conv.Messages) - s.cfg.ContextWindow
	older, kept := conv.Messages[:cut], conv.Messages[cut:]

	summary := summarize(older, instructions)
	now := s.now()

	messages := make([]domain.Message, 0, len(kept)+1)
	messages = append(messages, domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleSystem,
		Content:   summary,
		Timestamp: now,
		Metadata:  domain.MessageMetadata{Summary: true},
	})
	messages = append(messages, kept...)

	conv.Messages = messages
	conv.Metadata.CompactionCount++
	conv.Metadata.UpdatedAt = now

	return summary, true
}

func summarize(messages []domain.Message, instructions string) string {
	var users, assistants, previous int
	var topics []string

	for _, m := range messages {
		switch {
		case m.Metadata.Summary:
			previous++
		case m.Role == domain.RoleUser:
			users++
			topics = append(topics, topic(m.Content))
		case m.Role == domain.RoleAssistant:
			assistants++
		}
	}

	if len(topics) > summaryTopics {
		topics = topics[len(topics)-summaryTopics:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages (%d from the user, %d from the assistant).",
		len(messages), users, assistants)
	if previous > 0 {
		fmt.Fprintf(&b, " Includes %d earlier summary.", previous)
	}
	if len(topics) > 0 {
		b.WriteString(" Recent topics: ")
		b.WriteString(strings.Join(topics, "; "))
		b.WriteString(".")
	}
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		b.WriteString(" Instructions: ")
		b.WriteString(instructions)
	}

	return b.String()
}

func topic(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	runes := []rune(text)
	if len(runes) > summaryTopicChars {
		return string(runes[:summaryTopicChars]) + "..."
	}
	return text
}
