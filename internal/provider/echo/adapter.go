// Package echo provides a deterministic provider that echoes the latest user
// message. It makes no external calls and serves as the default development
// provider and as a test double.
//
// A user message of the form "/tool <name> <json>" makes the provider request
// that tool call instead of replying.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const (
	// ProviderID is the registry id of the echo provider.
	ProviderID = "echo"

	modelName     = "echo-1"
	toolCommand   = "/tool"
	contextWindow = 8192
)

// Config contains echo provider settings.
type Config struct {
	Enabled bool `env:"ECHO_ENABLED" envDefault:"true"`
}

// Provider implements domain.ProviderClient for echo testing.
type Provider struct {
	supportedModels map[string]bool
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		supportedModels: map[string]bool{
			modelName: true,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderID
}

// Models returns the single echo model.
func (p *Provider) Models() []domain.Model {
	return []domain.Model{{ID: modelName, DisplayName: "Echo", ContextWindow: contextWindow}}
}

// CostPerThousandTokens is zero.
func (p *Provider) CostPerThousandTokens() domain.PricingConfig {
	return domain.PricingConfig{}
}

// Probe always succeeds.
func (p *Provider) Probe(context.Context) error {
	return nil
}

// Complete echoes the latest user message.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	if !p.supportedModels[req.Model] {
		return nil, fmt.Errorf("model %s is not supported by echo provider", req.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	prompt := lastUserMessage(req.Messages)
	resp := &domain.CompletionResponse{
		ID:         fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:      req.Model,
		Provider:   ProviderID,
		FinishTime: time.Now(),
	}

	if call, ok := parseToolCommand(prompt); ok {
		resp.ToolCalls = []domain.ToolCall{call}
	} else {
		resp.Content = prompt
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += countTokens(m.Content)
	}
	completionTokens := countTokens(resp.Content)

	logger.Debug("echo completed",
		observability.Int("prompt_tokens", promptTokens),
		observability.Int("completion_tokens", completionTokens),
	)

	resp.Usage = &domain.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
	return resp, nil
}

func lastUserMessage(messages []domain.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// parseToolCommand recognizes "/tool <name> [json]".
func parseToolCommand(content string) (domain.ToolCall, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), toolCommand+" ")
	if !ok {
		return domain.ToolCall{}, false
	}

	name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if name == "" {
		return domain.ToolCall{}, false
	}

	args = strings.TrimSpace(args)
	if args == "" {
		args = "{}"
	}

	return domain.ToolCall{
		ID:        "call_" + name,
		Name:      name,
		Arguments: args,
	}, true
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
