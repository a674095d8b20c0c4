// Package openai provides an adapter for the OpenAI API using the official SDK.
// It implements domain.ProviderClient and converts between domain types and
// SDK types, forwarding tool definitions and parsing tool calls.
package openai

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// ProviderID is the registry id of the OpenAI provider.
const ProviderID = "openai"

// Provider implements domain.ProviderClient for OpenAI.
type Provider struct {
	client openai.Client
	models []domain.Model
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	// The gateway owns retries; SDK retries stack on top of them.
	if config.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Provider{
		client: openai.NewClient(opts...),
		models: DefaultModels(),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderID
}

// Models returns the models offered by OpenAI.
func (p *Provider) Models() []domain.Model {
	return slices.Clone(p.models)
}

// CostPerThousandTokens returns the default rates used for unpriced models.
func (p *Provider) CostPerThousandTokens() domain.PricingConfig {
	return defaultPricing
}

// Probe lists models as a lightweight authenticated health check.
func (p *Provider) Probe(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI probe failed: %w", err)
	}
	return nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API", observability.Int("tools", len(req.Tools)))

	resp, err := p.client.Chat.Completions.New(ctx, toSDKParams(req))
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return toDomainResponse(resp), nil
}

// toSDKParams converts domain request to SDK ChatCompletionNewParams.
func toSDKParams(req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleAssistant:
			messages[i] = openai.AssistantMessage(msg.Content)
		case domain.RoleSystem:
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Parameters),
			},
		})
	}

	return params
}

// toDomainResponse converts SDK response to domain response. Cost is left to
// the caller, which prices by model.
func toDomainResponse(resp *openai.ChatCompletion) *domain.CompletionResponse {
	out := &domain.CompletionResponse{
		ID:         resp.ID,
		Model:      string(resp.Model),
		Provider:   ProviderID,
		FinishTime: time.Now(),
	}

	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}

	if resp.Usage.TotalTokens > 0 {
		out.Usage = &domain.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}

	return out
}
