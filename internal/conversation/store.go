// Package conversation owns conversation lifecycle and message accounting.
package conversation

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// ModuleName tags the store's bus subscriptions.
const ModuleName = "conversation-store"

// CreateOptions are the caller-supplied settings of a new conversation.
type CreateOptions struct {
	Title        string
	Tags         []string
	Provider     string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Store implements domain.ConversationStore.
type Store struct {
	mu            sync.RWMutex
	cfg           Config
	bus           *events.Bus
	directory     domain.ProviderDirectory
	now           func() time.Time
	conversations map[string]*domain.Conversation
	currentID     string
}

// NewStore creates a store and binds it to active-provider-changed events so
// a registry switch that names a conversation rebinds that conversation.
func NewStore(cfg Config, bus *events.Bus, directory domain.ProviderDirectory) *Store {
	s := &Store{
		cfg:           cfg.withDefaults(),
		bus:           bus,
		directory:     directory,
		now:           time.Now,
		conversations: make(map[string]*domain.Conversation),
	}

	if bus != nil {
		events.On(bus, ModuleName, s.onActiveProviderChanged)
	}

	return s
}

// WithClock replaces time.Now, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// Close removes the store's bus subscriptions.
func (s *Store) Close() {
	if s.bus != nil {
		s.bus.UnsubscribeModule(ModuleName)
	}
}

func (s *Store) onActiveProviderChanged(ctx context.Context, p events.ActiveProviderChangedPayload) {
	if p.ConversationID == "" {
		return
	}

	if _, err := s.SwitchProvider(ctx, p.ConversationID, p.ProviderID, "", p.Reason); err != nil {
		observability.FromContext(ctx).Warn("failed to bind conversation to active provider",
			observability.String("conversation_id", p.ConversationID),
			observability.String("provider", p.ProviderID),
			observability.Error(err))
	}
}

// Create allocates a conversation, makes it current and enforces the session cap.
func (s *Store) Create(ctx context.Context, opts CreateOptions) (string, error) {
	provider := opts.Provider
	if provider == "" {
		provider = s.cfg.DefaultProvider
	}
	if opts.Provider != "" && s.directory != nil && !s.directory.HasProvider(provider) {
		return "", fmt.Errorf("provider %s: %w", provider, domain.ErrUnknownProvider)
	}

	model := opts.Model
	if model == "" {
		model = s.providerModel(provider)
	}

	title := opts.Title
	if title == "" {
		title = defaultTitle
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = s.cfg.DefaultTemperature
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.cfg.DefaultMaxTokens
	}

	s.mu.Lock()
	now := s.now()
	conv := &domain.Conversation{
		ID:    uuid.NewString(),
		Title: title,
		Tags:  slices.Clone(opts.Tags),
		Settings: domain.ConversationSettings{
			Provider:     provider,
			Model:        model,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
			SystemPrompt: opts.SystemPrompt,
		},
		SessionState: domain.SessionState{
			CurrentProvider: provider,
			CurrentModel:    model,
			Pinned:          opts.Provider != "",
		},
		Metadata: domain.ConversationMetadata{
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
			CostTracking:   domain.ConversationCost{ByProvider: make(map[string]float64)},
			ProviderStats:  make(map[string]*domain.ProviderStats),
		},
	}
	s.conversations[conv.ID] = conv
	s.currentID = conv.ID

	pending := []events.Payload{events.SessionCreatedPayload{ConversationID: conv.ID}}
	pending = append(pending, s.evictLocked()...)
	s.mu.Unlock()

	observability.FromContext(ctx).Info("conversation created",
		observability.String("conversation_id", conv.ID),
		observability.String("provider", provider),
		observability.String("model", model))

	s.publish(ctx, pending...)
	return conv.ID, nil
}

func (s *Store) providerModel(providerID string) string {
	if s.directory != nil {
		if p, err := s.directory.Get(providerID); err == nil && p.Model != "" {
			return p.Model
		}
	}
	return s.cfg.DefaultModel
}

// evictLocked must be called with s.mu held. It removes the least recently
// accessed conversations other than the current one until the cap holds.
func (s *Store) evictLocked() []events.Payload {
	var pending []events.Payload

	for len(s.conversations) > s.cfg.MaxSessions {
		var victim *domain.Conversation
		for id, conv := range s.conversations {
			if id == s.currentID {
				continue
			}
			if victim == nil || conv.Metadata.LastAccessedAt.Before(victim.Metadata.LastAccessedAt) {
				victim = conv
			}
		}
		if victim == nil {
			break
		}

		delete(s.conversations, victim.ID)
		pending = append(pending, events.ConversationEvictedPayload{ConversationID: victim.ID})
	}

	return pending
}

// Get returns a copy of the conversation.
func (s *Store) Get(conversationID string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return domain.Conversation{}, notFound(conversationID)
	}
	return conv.Clone(), nil
}

// List returns copies of all conversations, most recently updated first.
func (s *Store) List() []domain.Conversation {
	s.mu.RLock()
	out := make([]domain.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Conversation) int {
		return b.Metadata.UpdatedAt.Compare(a.Metadata.UpdatedAt)
	})
	return out
}

// Current returns the current conversation, if any.
func (s *Store) Current() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[s.currentID]
	if !ok {
		return domain.Conversation{}, false
	}
	return conv.Clone(), true
}

// Delete removes a conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return notFound(conversationID)
	}
	delete(s.conversations, conversationID)
	if s.currentID == conversationID {
		s.currentID = ""
	}

	observability.FromContext(ctx).Info("conversation deleted",
		observability.String("conversation_id", conversationID))
	return nil
}

// SetTags replaces the conversation's tags.
func (s *Store) SetTags(_ context.Context, conversationID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return notFound(conversationID)
	}
	conv.Tags = slices.Clone(tags)
	conv.Metadata.UpdatedAt = s.now()
	return nil
}

func (s *Store) publish(ctx context.Context, payloads ...events.Payload) {
	if s.bus == nil {
		return
	}
	for _, p := range payloads {
		s.bus.Publish(ctx, p)
	}
}

func notFound(conversationID string) error {
	return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrConversationNotFound)
}
