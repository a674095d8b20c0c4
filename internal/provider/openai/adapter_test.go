package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/openai"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": "checking the time",
      "refusal": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "current_time", "arguments": "{\"timezone\":\"UTC\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func newTestServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			if captured != nil {
				_ = json.NewDecoder(r.Body).Decode(captured)
			}
			_, _ = w.Write([]byte(completionBody))
		case strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newProvider(t *testing.T, baseURL string) *openai.Provider {
	t.Helper()

	provider, err := openai.NewProvider(openai.Config{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Timeout:    5,
		MaxRetries: 0,
	})
	require.NoError(t, err)
	return provider
}

func TestNewProvider_Success(t *testing.T) {
	config := openai.Config{
		APIKey:     "test-api-key",
		BaseURL:    "https://api.openai.com/v1",
		Timeout:    60,
		MaxRetries: 3,
	}

	provider, err := openai.NewProvider(config)

	require.NoError(t, err)
	require.NotNil(t, provider)
	require.Equal(t, "openai", provider.Name())
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	provider, err := openai.NewProvider(openai.Config{BaseURL: "https://api.openai.com/v1"})

	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "OpenAI API key is required")
}

func TestProvider_Models(t *testing.T) {
	provider := newProvider(t, "https://api.openai.com/v1")

	models := provider.Models()

	require.NotEmpty(t, models)
	require.Equal(t, "gpt-4o-mini", models[0].ID)
	require.Positive(t, provider.CostPerThousandTokens().InputCostPer1K)
}

func TestProvider_Complete(t *testing.T) {
	t.Run("should forward tools and parse tool calls", func(t *testing.T) {
		var body map[string]any
		server := newTestServer(t, &body)
		defer server.Close()
		provider := newProvider(t, server.URL+"/v1")

		resp, err := provider.Complete(context.Background(), &domain.CompletionRequest{
			Model: "gpt-4o-mini",
			Messages: []domain.ChatMessage{
				{Role: domain.RoleSystem, Content: "be brief"},
				{Role: domain.RoleUser, Content: "what time is it?"},
			},
			Tools: []domain.ToolDefinition{{
				Name:        "current_time",
				Description: "Returns the current time",
				Parameters:  map[string]any{"type": "object"},
			}},
		})

		require.NoError(t, err)
		require.Equal(t, "checking the time", resp.Content)
		require.Equal(t, "openai", resp.Provider)
		require.Equal(t, "gpt-4o-mini", resp.Model)
		require.Len(t, resp.ToolCalls, 1)
		require.Equal(t, "current_time", resp.ToolCalls[0].Name)
		require.JSONEq(t, `{"timezone":"UTC"}`, resp.ToolCalls[0].Arguments)
		require.NotNil(t, resp.Usage)
		require.Equal(t, 12, resp.Usage.PromptTokens)
		require.Equal(t, 17, resp.Usage.TotalTokens)

		tools, ok := body["tools"].([]any)
		require.True(t, ok)
		require.Len(t, tools, 1)
		function := tools[0].(map[string]any)["function"].(map[string]any)
		require.Equal(t, "current_time", function["name"])
		require.Len(t, body["messages"], 2)
	})

	t.Run("should reject a nil request", func(t *testing.T) {
		provider := newProvider(t, "https://api.openai.com/v1")

		resp, err := provider.Complete(context.Background(), nil)

		require.Error(t, err)
		require.Nil(t, resp)
		require.Contains(t, err.Error(), "request cannot be nil")
	})

	t.Run("should wrap API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer server.Close()
		provider := newProvider(t, server.URL+"/v1")

		_, err := provider.Complete(context.Background(), &domain.CompletionRequest{
			Model:    "gpt-4o-mini",
			Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
		})

		require.Error(t, err)
		require.Contains(t, err.Error(), "OpenAI API call failed")
	})
}

func TestProvider_Probe(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	require.NoError(t, newProvider(t, server.URL+"/v1").Probe(context.Background()))
}
