package domain

import "context"

// ProviderClient is the vendor-specific handle the gateway calls.
type ProviderClient interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Models returns the models offered by the provider, in display order.
	Models() []Model

	// CostPerThousandTokens returns the default per-1K token rates.
	CostPerThousandTokens() PricingConfig

	// Probe performs a lightweight health check.
	Probe(ctx context.Context) error
}

// ToolExecutor resolves and runs tools requested by a model.
type ToolExecutor interface {
	// Invoke validates args against the tool schema and runs it.
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)

	// Definitions lists the tools offered to providers.
	Definitions() []ToolDefinition
}

// Persistence is an opaque key-value store for engine state.
type Persistence interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// ProviderRegistry is the registry surface the gateway depends on.
type ProviderRegistry interface {
	// Get returns a snapshot of a provider.
	Get(providerID string) (Provider, error)

	// ActiveID returns the active provider id, empty when none is active.
	ActiveID() string

	// Client returns the client handle of a provider.
	Client(providerID string) (ProviderClient, error)

	// Acquire reports ErrProviderUnavailable while the provider's breaker is
	// open. On success the returned release must be called once the call is
	// over, whether or not it reported success or failure.
	Acquire(providerID string) (release func(), err error)

	// RecordSuccess marks a successful call.
	RecordSuccess(ctx context.Context, providerID string)

	// RecordFailure marks a failed call and may trigger auto-failover.
	RecordFailure(ctx context.Context, providerID string, cause error)

	// TrackUsage adds a usage report to the provider's counters.
	TrackUsage(ctx context.Context, providerID string, report UsageReport) error
}

// ConversationStore is the store surface the gateway depends on.
type ConversationStore interface {
	// Get returns a copy of the conversation.
	Get(conversationID string) (Conversation, error)

	// Recent returns up to n trailing messages.
	Recent(conversationID string, n int) ([]Message, error)

	// AddMessage appends a message and updates accounting.
	AddMessage(ctx context.Context, conversationID string, input MessageInput) (Message, error)
}

// MessageInput is the caller-supplied part of a new message.
type MessageInput struct {
	Role     Role
	Content  string
	Metadata MessageMetadata
}

// ProviderDirectory answers which providers are registered.
type ProviderDirectory interface {
	// HasProvider reports whether providerID is registered.
	HasProvider(providerID string) bool

	// Get returns a snapshot of a provider.
	Get(providerID string) (Provider, error)
}

// FailoverSelector picks a replacement provider.
type FailoverSelector interface {
	// Select returns the id of the best alternative to exclude.
	Select(candidates []Provider, exclude string) (string, error)
}
