package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/ollama"
)

func newServer(t *testing.T, chat http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2"},{"name":"qwen2.5"}]}`))
	})
	if chat != nil {
		mux.HandleFunc("POST /api/chat", chat)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Complete(t *testing.T) {
	t.Run("should send messages and parse the reply", func(t *testing.T) {
		var got map[string]any
		server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"model": "llama3.2",
				"message": {"role": "assistant", "content": "hello there"},
				"done": true,
				"prompt_eval_count": 9,
				"eval_count": 3
			}`))
		})
		client := ollama.NewClient(ollama.Config{BaseURL: server.URL}, nil)

		resp, err := client.Complete(context.Background(), &domain.CompletionRequest{
			Model:       "llama3.2",
			Messages:    []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
			Temperature: 0.5,
		})

		require.NoError(t, err)
		require.Equal(t, "hello there", resp.Content)
		require.Equal(t, "ollama", resp.Provider)
		require.Equal(t, 12, resp.Usage.TotalTokens)
		require.Equal(t, false, got["stream"])
		require.Equal(t, 0.5, got["options"].(map[string]any)["temperature"])
	})

	t.Run("should parse tool calls with object arguments", func(t *testing.T) {
		server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"model": "llama3.2",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"function": {"name": "current_time", "arguments": {"timezone": "UTC"}}}]
				},
				"done": true
			}`))
		})
		client := ollama.NewClient(ollama.Config{BaseURL: server.URL}, nil)

		resp, err := client.Complete(context.Background(), &domain.CompletionRequest{
			Model:    "llama3.2",
			Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "time?"}},
			Tools:    []domain.ToolDefinition{{Name: "current_time"}},
		})

		require.NoError(t, err)
		require.Len(t, resp.ToolCalls, 1)
		require.Equal(t, "current_time", resp.ToolCalls[0].Name)
		require.JSONEq(t, `{"timezone":"UTC"}`, resp.ToolCalls[0].Arguments)
		require.Nil(t, resp.Usage)
	})

	t.Run("should surface server errors", func(t *testing.T) {
		server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
		})
		client := ollama.NewClient(ollama.Config{BaseURL: server.URL}, nil)

		_, err := client.Complete(context.Background(), &domain.CompletionRequest{Model: "llama3.2"})

		require.Error(t, err)
		require.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("should reject a nil request", func(t *testing.T) {
		client := ollama.NewClient(ollama.Config{}, nil)

		_, err := client.Complete(context.Background(), nil)

		require.Error(t, err)
	})
}

func TestClient_Probe(t *testing.T) {
	t.Run("should list installed models", func(t *testing.T) {
		server := newServer(t, nil)
		client := ollama.NewClient(ollama.Config{BaseURL: server.URL}, []domain.Model{{ID: "llama3.2"}})

		names, err := client.ListModels(context.Background())

		require.NoError(t, err)
		require.Equal(t, []string{"llama3.2", "qwen2.5"}, names)
		require.NoError(t, client.Probe(context.Background()))
		require.Equal(t, "llama3.2", client.Models()[0].ID)
		require.Zero(t, client.CostPerThousandTokens())
	})

	t.Run("should fail when the server is unreachable", func(t *testing.T) {
		server := newServer(t, nil)
		url := server.URL
		server.Close()
		client := ollama.NewClient(ollama.Config{BaseURL: url}, nil)

		require.Error(t, client.Probe(context.Background()))
	})
}
