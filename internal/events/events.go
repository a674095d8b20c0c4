package events

import "github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"

// Name identifies an event. Payload field names are part of the contract with
// downstream consumers.
type Name string

// Payload is implemented by every event payload; the set of implementations is
// the closed list of events the engine emits.
type Payload interface {
	EventName() Name
}

// Provider registry events.
const (
	ActiveProviderChanged    Name = "active-provider-changed"
	ProviderActivated        Name = "provider-activated"
	ProviderDeactivated      Name = "provider-deactivated"
	ProviderSwitchWarning    Name = "provider-switch-warning"
	ProviderStatusChanged    Name = "provider-status-changed"
	ProviderUsageTracked     Name = "provider-usage-tracked"
	CostLimitWarning         Name = "cost-limit-warning"
	ProviderAutoSwitched     Name = "provider-auto-switched"
	ProviderAutoSwitchFailed Name = "provider-auto-switch-failed"
	ProviderHealthChecked    Name = "provider-health-checked"
	ProviderCredentialChange Name = "provider-credential-changed"
)

// Conversation store events.
const (
	ConversationCompacted        Name = "conversation-compacted"
	SessionCreated               Name = "session-created"
	SessionResumed               Name = "session-resumed"
	SessionContinued             Name = "session-continued"
	ConversationMessageAdded     Name = "conversation-message-added"
	ConversationCleared          Name = "conversation-cleared"
	ConversationEvicted          Name = "conversation-evicted"
	ConversationProviderSwitched Name = "conversation-provider-switched"
)

// Gateway events.
const (
	ToolExecuted     Name = "tool-executed"
	MessageCompleted Name = "message-completed"
)

// ActiveProviderChangedPayload is emitted when the registry's active pointer moves.
type ActiveProviderChangedPayload struct {
	ProviderID       string `json:"providerId"`
	PreviousProvider string `json:"previousProvider"`
	Reason           string `json:"reason"`
	ConversationID   string `json:"conversationId,omitempty"`
}

// EventName implements Payload.
func (ActiveProviderChangedPayload) EventName() Name { return ActiveProviderChanged }

// ProviderActivatedPayload is emitted for the newly active provider.
type ProviderActivatedPayload struct {
	ProviderID string `json:"providerId"`
}

// EventName implements Payload.
func (ProviderActivatedPayload) EventName() Name { return ProviderActivated }

// ProviderDeactivatedPayload is emitted for the previously active provider.
type ProviderDeactivatedPayload struct {
	ProviderID string `json:"providerId"`
}

// EventName implements Payload.
func (ProviderDeactivatedPayload) EventName() Name { return ProviderDeactivated }

// ProviderSwitchWarningPayload is emitted when switching to a provider that is not connected.
type ProviderSwitchWarningPayload struct {
	ProviderID string                `json:"providerId"`
	Status     domain.ProviderStatus `json:"status"`
	Reason     string                `json:"reason"`
}

// EventName implements Payload.
func (ProviderSwitchWarningPayload) EventName() Name { return ProviderSwitchWarning }

// ProviderStatusChangedPayload is emitted on every status transition.
type ProviderStatusChangedPayload struct {
	ProviderID     string                `json:"providerId"`
	Status         domain.ProviderStatus `json:"status"`
	PreviousStatus domain.ProviderStatus `json:"previousStatus"`
	Error          string                `json:"error,omitempty"`
}

// EventName implements Payload.
func (ProviderStatusChangedPayload) EventName() Name { return ProviderStatusChanged }

// ProviderUsageTrackedPayload is emitted after usage is added to a provider.
type ProviderUsageTrackedPayload struct {
	ProviderID  string  `json:"providerId"`
	Tokens      int     `json:"tokens"`
	Cost        float64 `json:"cost"`
	SessionCost float64 `json:"sessionCost"`
	TotalCost   float64 `json:"totalCost"`
}

// EventName implements Payload.
func (ProviderUsageTrackedPayload) EventName() Name { return ProviderUsageTracked }

// Cost limit types.
const (
	LimitTypeCost   = "cost"
	LimitTypeTokens = "tokens"
)

// CostLimitWarningPayload is emitted once per session when usage crosses the warning ratio.
type CostLimitWarningPayload struct {
	Type       string  `json:"type"`
	Current    float64 `json:"current"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
}

// EventName implements Payload.
func (CostLimitWarningPayload) EventName() Name { return CostLimitWarning }

// ProviderAutoSwitchedPayload is emitted when failover moved the active provider.
type ProviderAutoSwitchedPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// EventName implements Payload.
func (ProviderAutoSwitchedPayload) EventName() Name { return ProviderAutoSwitched }

// ProviderAutoSwitchFailedPayload is emitted when no failover candidate qualified.
type ProviderAutoSwitchFailedPayload struct {
	ProviderID string `json:"providerId"`
	Reason     string `json:"reason"`
}

// EventName implements Payload.
func (ProviderAutoSwitchFailedPayload) EventName() Name { return ProviderAutoSwitchFailed }

// ProviderHealthCheckedPayload summarizes one health-check pass.
type ProviderHealthCheckedPayload struct {
	Checked int `json:"checked"`
	Healthy int `json:"healthy"`
}

// EventName implements Payload.
func (ProviderHealthCheckedPayload) EventName() Name { return ProviderHealthChecked }

// ProviderCredentialChangedPayload is emitted when credential availability flips.
type ProviderCredentialChangedPayload struct {
	ProviderID    string `json:"providerId"`
	HasCredential bool   `json:"hasCredential"`
}

// EventName implements Payload.
func (ProviderCredentialChangedPayload) EventName() Name { return ProviderCredentialChange }

// ConversationCompactedPayload is emitted after a compaction replaced older messages.
type ConversationCompactedPayload struct {
	ConversationID string `json:"conversationId"`
	Summary        string `json:"summary"`
}

// EventName implements Payload.
func (ConversationCompactedPayload) EventName() Name { return ConversationCompacted }

// SessionCreatedPayload is emitted for a new conversation.
type SessionCreatedPayload struct {
	ConversationID string `json:"conversationId"`
}

// EventName implements Payload.
func (SessionCreatedPayload) EventName() Name { return SessionCreated }

// SessionResumedPayload is emitted when a conversation is resumed by id.
type SessionResumedPayload struct {
	ConversationID string `json:"conversationId"`
}

// EventName implements Payload.
func (SessionResumedPayload) EventName() Name { return SessionResumed }

// SessionContinuedPayload is emitted when the most recent conversation is continued.
type SessionContinuedPayload struct {
	ConversationID string `json:"conversationId"`
}

// EventName implements Payload.
func (SessionContinuedPayload) EventName() Name { return SessionContinued }

// ConversationMessageAddedPayload is emitted for every appended message.
type ConversationMessageAddedPayload struct {
	ConversationID string      `json:"conversationId"`
	MessageID      string      `json:"messageId"`
	Role           domain.Role `json:"role"`
}

// EventName implements Payload.
func (ConversationMessageAddedPayload) EventName() Name { return ConversationMessageAdded }

// ConversationClearedPayload is emitted when a conversation's messages are cleared.
type ConversationClearedPayload struct {
	ConversationID string `json:"conversationId"`
}

// EventName implements Payload.
func (ConversationClearedPayload) EventName() Name { return ConversationCleared }

// ConversationEvictedPayload is emitted when the session cap evicts a conversation.
type ConversationEvictedPayload struct {
	ConversationID string `json:"conversationId"`
}

// EventName implements Payload.
func (ConversationEvictedPayload) EventName() Name { return ConversationEvicted }

// ConversationProviderSwitchedPayload is emitted when a conversation is bound to another provider.
type ConversationProviderSwitchedPayload struct {
	ConversationID string `json:"conversationId"`
	From           string `json:"from"`
	To             string `json:"to"`
	Model          string `json:"model"`
	Reason         string `json:"reason"`
}

// EventName implements Payload.
func (ConversationProviderSwitchedPayload) EventName() Name { return ConversationProviderSwitched }

// ToolExecutedPayload is emitted for every tool call the gateway ran.
type ToolExecutedPayload struct {
	ConversationID string `json:"conversationId"`
	Tool           string `json:"tool"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
}

// EventName implements Payload.
func (ToolExecutedPayload) EventName() Name { return ToolExecuted }

// MessageCompletedPayload is emitted after the gateway stored an assistant reply.
type MessageCompletedPayload struct {
	ConversationID string  `json:"conversationId"`
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	InputTokens    int     `json:"inputTokens"`
	OutputTokens   int     `json:"outputTokens"`
	Cost           float64 `json:"cost"`
	Estimated      bool    `json:"estimated"`
}

// EventName implements Payload.
func (MessageCompletedPayload) EventName() Name { return MessageCompleted }
