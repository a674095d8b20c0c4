// Package ollama implements domain.ProviderClient against a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// ProviderID is the registry id of the Ollama provider.
const ProviderID = "ollama"

// Config contains Ollama provider configuration.
type Config struct {
	Enabled bool          `env:"OLLAMA_ENABLED"  envDefault:"false"`
	BaseURL string        `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	Timeout time.Duration `env:"OLLAMA_TIMEOUT"  envDefault:"120s"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []tool         `json:"tools,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Client talks to the Ollama REST API.
type Client struct {
	http   *resty.Client
	models []domain.Model
}

// NewClient creates a client. models is the advertised model list; the
// server's installed models are checked by Probe.
func NewClient(cfg Config, models []domain.Model) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	return &Client{http: c, models: slices.Clone(models)}
}

// Models returns the advertised models.
func (c *Client) Models() []domain.Model {
	return slices.Clone(c.models)
}

// CostPerThousandTokens is zero: local models are free.
func (c *Client) CostPerThousandTokens() domain.PricingConfig {
	return domain.PricingConfig{}
}

// Probe lists installed models.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// ListModels returns the names of models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var resp tagsResponse
	r, err := c.http.R().SetContext(ctx).SetResult(&resp).Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama list models: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("ollama list models: %s; body: %s", r.Status(), r.String())
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Complete sends a non-streaming chat request.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, tool{
			Type:     "function",
			Function: toolFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		body.Options = options
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Ollama API", observability.String("model", req.Model))

	var resp chatResponse
	r, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&resp).Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("ollama chat: %s; body: %s", r.Status(), r.String())
	}

	out := &domain.CompletionResponse{
		Model:      resp.Model,
		Provider:   ProviderID,
		Content:    resp.Message.Content,
		FinishTime: time.Now(),
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	for i, call := range resp.Message.ToolCalls {
		args := string(call.Function.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 {
		out.Usage = &domain.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		}
	}

	return out, nil
}
