package domain

import "time"

// Message is one entry of a conversation history.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata"`
}

// MessageMetadata carries attribution and accounting for a message.
type MessageMetadata struct {
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	Tokens         TokenCount    `json:"tokens"`
	Cost           float64       `json:"cost"`
	ProcessingTime time.Duration `json:"processingTime,omitempty"`
	Summary        bool          `json:"summary,omitempty"`
	ToolResults    []ToolResult  `json:"toolResults,omitempty"`
}

// TokenCount splits tokens into input and output.
type TokenCount struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output tokens.
func (t TokenCount) Total() int {
	return t.Input + t.Output
}

// ConversationSettings are the per-conversation request defaults.
type ConversationSettings struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
}

// SessionState tracks which provider a conversation is bound to.
type SessionState struct {
	CurrentProvider string `json:"currentProvider"`
	CurrentModel    string `json:"currentModel"`
	// Pinned is set when the provider was chosen explicitly, at creation or
	// by a switch. Unpinned conversations follow the active provider.
	Pinned           bool           `json:"pinned"`
	ProviderHistory  []SwitchRecord `json:"providerHistory"`
	ContinuationMode bool           `json:"continuationMode"`
}

// TokenUsage aggregates tokens over a conversation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ConversationCost aggregates cost over a conversation.
type ConversationCost struct {
	Session    float64            `json:"session"`
	Total      float64            `json:"total"`
	ByProvider map[string]float64 `json:"byProvider"`
}

// ProviderStats aggregates one provider's share of a conversation.
type ProviderStats struct {
	MessageCount int            `json:"messageCount"`
	LastUsedAt   time.Time      `json:"lastUsedAt"`
	TotalCost    float64        `json:"totalCost"`
	TotalTokens  int            `json:"totalTokens"`
	Models       map[string]int `json:"models"`
}

// ConversationMetadata holds counters and timestamps of a conversation.
type ConversationMetadata struct {
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	LastAccessedAt  time.Time                 `json:"lastAccessedAt"`
	MessageCount    int                       `json:"messageCount"`
	TokenUsage      TokenUsage                `json:"tokenUsage"`
	CostTracking    ConversationCost          `json:"costTracking"`
	ProviderStats   map[string]*ProviderStats `json:"providerStats"`
	CompactionCount int                       `json:"compactionCount"`
}

// Conversation is an addressable chat session.
type Conversation struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Tags         []string             `json:"tags,omitempty"`
	Messages     []Message            `json:"messages"`
	Settings     ConversationSettings `json:"settings"`
	SessionState SessionState         `json:"sessionState"`
	Metadata     ConversationMetadata `json:"metadata"`
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Conversation) Clone() Conversation {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		m.Metadata.ToolResults = append([]ToolResult(nil), m.Metadata.ToolResults...)
		out.Messages[i] = m
	}
	out.SessionState.ProviderHistory = append([]SwitchRecord(nil), c.SessionState.ProviderHistory...)

	out.Metadata.CostTracking.ByProvider = make(map[string]float64, len(c.Metadata.CostTracking.ByProvider))
	for k, v := range c.Metadata.CostTracking.ByProvider {
		out.Metadata.CostTracking.ByProvider[k] = v
	}

	out.Metadata.ProviderStats = make(map[string]*ProviderStats, len(c.Metadata.ProviderStats))
	for k, v := range c.Metadata.ProviderStats {
		stats := *v
		stats.Models = make(map[string]int, len(v.Models))
		for model, count := range v.Models {
			stats.Models[model] = count
		}
		out.Metadata.ProviderStats[k] = &stats
	}

	return out
}
