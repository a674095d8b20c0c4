package domain

import "time"

// ProviderStatus is the live connection state of a provider.
type ProviderStatus string

// Provider states.
const (
	StatusDisconnected ProviderStatus = "disconnected"
	StatusConnecting   ProviderStatus = "connecting"
	StatusConnected    ProviderStatus = "connected"
	StatusDegraded     ProviderStatus = "degraded"
	StatusError        ProviderStatus = "error"
)

// Model describes one model offered by a provider.
type Model struct {
	ID            string `json:"id"                      toml:"id"             yaml:"id"`
	DisplayName   string `json:"displayName"             toml:"display_name"   yaml:"display_name"`
	ContextWindow int    `json:"contextWindow,omitempty" toml:"context_window" yaml:"context_window"`
}

// CostTracking holds session (resettable) and total (cumulative) usage counters.
type CostTracking struct {
	SessionCost   float64 `json:"sessionCost"`
	SessionTokens int     `json:"sessionTokens"`
	TotalCost     float64 `json:"totalCost"`
	TotalTokens   int     `json:"totalTokens"`
}

// Add applies a usage report to both session and total counters.
func (c *CostTracking) Add(report UsageReport) {
	c.SessionCost += report.Cost
	c.SessionTokens += report.Tokens
	c.TotalCost += report.Cost
	c.TotalTokens += report.Tokens
}

// ResetSession zeroes the session counters and leaves totals untouched.
func (c *CostTracking) ResetSession() {
	c.SessionCost = 0
	c.SessionTokens = 0
}

// Provider is a snapshot of a registered provider.
type Provider struct {
	ID                  string         `json:"id"`
	DisplayName         string         `json:"displayName"`
	Status              ProviderStatus `json:"status"`
	Model               string         `json:"model"`
	AvailableModels     []Model        `json:"availableModels"`
	HasCredential       bool           `json:"hasCredential"`
	ConsecutiveFailures uint           `json:"consecutiveFailures"`
	LastError           string         `json:"lastError,omitempty"`
	LastUsedAt          time.Time      `json:"lastUsedAt"`
	LastStatusChangeAt  time.Time      `json:"lastStatusChangeAt"`
	CostTracking        CostTracking   `json:"costTracking"`
	BreakerState        string         `json:"breakerState"`
}

// HasModel reports whether modelID is among the provider's available models.
func (p Provider) HasModel(modelID string) bool {
	for _, m := range p.AvailableModels {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// SwitchRecord is one entry of the active-provider audit trail.
type SwitchRecord struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	From            string         `json:"from"` // empty for the very first switch
	To              string         `json:"to"`
	Reason          string         `json:"reason"`
	ConversationID  string         `json:"conversationId,omitempty"`
	ContextSnapshot SwitchSnapshot `json:"contextSnapshot"`
}

// SwitchSnapshot captures provider state at the moment of a switch.
type SwitchSnapshot struct {
	FromStatus   ProviderStatus `json:"fromStatus,omitempty"`
	FromModel    string         `json:"fromModel,omitempty"`
	ToStatus     ProviderStatus `json:"toStatus"`
	ToModel      string         `json:"toModel"`
	MessageCount int            `json:"messageCount,omitempty"`
}
