package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/tools"
)

// runTools executes the model's tool calls in order. A failing call is
// recorded in its result and never aborts the send.
func (g *Gateway) runTools(ctx context.Context, conversationID string, calls []domain.ToolCall) []domain.ToolResult {
	if len(calls) == 0 {
		return nil
	}

	logger := observability.FromContext(ctx)
	results := make([]domain.ToolResult, 0, len(calls))

	for _, call := range calls {
		result := domain.ToolResult{Name: call.Name}

		output, err := g.invoke(ctx, call)
		if err != nil {
			result.Error = err.Error()
			logger.Warn("tool call failed",
				observability.String("tool", call.Name),
				observability.Error(err))
		} else {
			result.Success = true
			result.Output = output
		}
		results = append(results, result)

		g.publish(ctx, events.ToolExecutedPayload{
			ConversationID: conversationID,
			Tool:           call.Name,
			Success:        result.Success,
			Error:          result.Error,
		})
	}

	return results
}

func (g *Gateway) invoke(ctx context.Context, call domain.ToolCall) (any, error) {
	if g.tools == nil {
		return nil, fmt.Errorf("tool %s: %w", call.Name, domain.ErrUnknownTool)
	}

	args, err := tools.ParseArguments(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	return g.tools.Invoke(ctx, call.Name, args)
}

// appendToolOutput makes tool outcomes visible in the assistant reply.
func appendToolOutput(content string, results []domain.ToolResult) string {
	if len(results) == 0 {
		return content
	}

	var b strings.Builder
	b.WriteString(content)
	for _, r := range results {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if !r.Success {
			fmt.Fprintf(&b, "[tool %s failed: %s]", r.Name, r.Error)
			continue
		}
		fmt.Fprintf(&b, "[tool %s] %s", r.Name, render(r.Output))
	}
	return b.String()
}

func render(output any) string {
	if s, ok := output.(string); ok {
		return s
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprint(output)
	}
	return string(raw)
}
