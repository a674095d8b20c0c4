// Package gateway sends user messages to the provider a conversation is bound
// to and records the exchange.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const breakerOpen = "open"

// SendOptions override conversation settings for one request.
type SendOptions struct {
	Model        string
	Temperature  *float64
	MaxTokens    int
	SystemPrompt string
	DisableTools bool
}

// Response is the outcome of Send. When NeedsCredential is set no provider
// was called and Failure tells the caller what to configure.
type Response struct {
	MessageID       string              `json:"messageId,omitempty"`
	Content         string              `json:"content"`
	Provider        string              `json:"provider"`
	Model           string              `json:"model"`
	Usage           domain.TokenCount   `json:"usage"`
	Cost            float64             `json:"cost"`
	Estimated       bool                `json:"estimated"`
	ToolResults     []domain.ToolResult `json:"toolResults,omitempty"`
	NeedsCredential bool                `json:"needsCredential,omitempty"`
	Failure         *domain.Failure     `json:"failure,omitempty"`
}

// Gateway implements the send pipeline.
type Gateway struct {
	cfg        Config
	registry   domain.ProviderRegistry
	store      domain.ConversationStore
	tools      domain.ToolExecutor
	calculator domain.CostCalculator
	bus        events.Publisher

	mu       sync.Mutex
	locks    map[string]chan struct{}
	limiters map[string]*rate.Limiter
}

// NewGateway creates a gateway. tools may be nil.
func NewGateway(
	cfg Config,
	registry domain.ProviderRegistry,
	store domain.ConversationStore,
	tools domain.ToolExecutor,
	calculator domain.CostCalculator,
	bus events.Publisher,
) *Gateway {
	return &Gateway{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		store:      store,
		tools:      tools,
		calculator: calculator,
		bus:        bus,
		locks:      make(map[string]chan struct{}),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Send delivers userMessage on conversationID. Sends on one conversation are
// serialized; waiting for the turn honours ctx.
func (g *Gateway) Send(ctx context.Context, conversationID, userMessage string, opts SendOptions) (*Response, error) {
	release, err := g.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = observability.WithConversationID(ctx, conversationID)
	logger := observability.FromContext(ctx)

	conv, err := g.store.Get(conversationID)
	if err != nil {
		return nil, err
	}

	providerID := g.resolveProvider(conv)
	if providerID == "" {
		return needsCredential("", errors.New("no provider is configured")), nil
	}

	ctx = observability.WithProvider(ctx, providerID)

	client, err := g.registry.Client(providerID)
	if err != nil {
		if errors.Is(err, domain.ErrMissingCredential) || errors.Is(err, domain.ErrUnknownProvider) {
			observability.FromContext(ctx).Info("provider needs setup", observability.Error(err))
			return needsCredential(providerID, err), nil
		}
		return nil, err
	}

	releaseBreaker, err := g.registry.Acquire(providerID)
	if err != nil {
		return nil, err
	}
	defer releaseBreaker()

	model := g.resolveModel(conv, providerID, opts)
	ctx = observability.WithModel(ctx, model)
	logger = observability.FromContext(ctx)

	req, err := g.buildRequest(conv, model, userMessage, opts)
	if err != nil {
		return nil, err
	}

	if err := g.limiter(providerID).Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.complete(ctx, providerID, client, req)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if resp.Model != "" {
		model = resp.Model
	}

	usage, estimated := tokenUsage(req, resp)
	cost := g.cost(ctx, client, model, resp, usage)

	content := resp.Content
	results := g.runTools(ctx, conversationID, resp.ToolCalls)
	content = appendToolOutput(content, results)

	if _, err := g.store.AddMessage(ctx, conversationID, domain.MessageInput{
		Role:     domain.RoleUser,
		Content:  userMessage,
		Metadata: domain.MessageMetadata{Provider: providerID},
	}); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	stored, err := g.store.AddMessage(ctx, conversationID, domain.MessageInput{
		Role:    domain.RoleAssistant,
		Content: content,
		Metadata: domain.MessageMetadata{
			Provider:       providerID,
			Model:          model,
			Tokens:         usage,
			Cost:           cost,
			ProcessingTime: elapsed,
			ToolResults:    results,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if err := g.registry.TrackUsage(ctx, providerID, domain.UsageReport{Tokens: usage.Total(), Cost: cost}); err != nil {
		logger.Warn("failed to track usage", observability.Error(err))
	}
	g.registry.RecordSuccess(ctx, providerID)

	logger.Info("message completed",
		observability.Int("input_tokens", usage.Input),
		observability.Int("output_tokens", usage.Output),
		observability.Float64("cost", cost),
		observability.Bool("estimated", estimated),
		observability.Duration("elapsed", elapsed))

	g.publish(ctx, events.MessageCompletedPayload{
		ConversationID: conversationID,
		Provider:       providerID,
		Model:          model,
		InputTokens:    usage.Input,
		OutputTokens:   usage.Output,
		Cost:           cost,
		Estimated:      estimated,
	})

	return &Response{
		MessageID:   stored.ID,
		Content:     content,
		Provider:    providerID,
		Model:       model,
		Usage:       usage,
		Cost:        cost,
		Estimated:   estimated,
		ToolResults: results,
	}, nil
}

func (g *Gateway) acquire(ctx context.Context, conversationID string) (func(), error) {
	g.mu.Lock()
	sem, ok := g.locks[conversationID]
	if !ok {
		sem = make(chan struct{}, 1)
		g.locks[conversationID] = sem
	}
	g.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveProvider sends a pinned conversation to its own provider while that
// provider is credentialed and healthy. Everything else follows the
// registry's active provider, which is what failover moves.
func (g *Gateway) resolveProvider(conv domain.Conversation) string {
	current := conv.SessionState.CurrentProvider
	if conv.SessionState.Pinned && g.usable(current) {
		return current
	}
	if active := g.registry.ActiveID(); active != "" {
		return active
	}
	return current
}

func (g *Gateway) usable(providerID string) bool {
	if providerID == "" {
		return false
	}
	p, err := g.registry.Get(providerID)
	if err != nil {
		return false
	}
	return p.HasCredential && p.Status != domain.StatusError && p.BreakerState != breakerOpen
}

func (g *Gateway) resolveModel(conv domain.Conversation, providerID string, opts SendOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	if providerID == conv.SessionState.CurrentProvider && conv.SessionState.CurrentModel != "" {
		return conv.SessionState.CurrentModel
	}
	if p, err := g.registry.Get(providerID); err == nil {
		return p.Model
	}
	return conv.Settings.Model
}

func (g *Gateway) buildRequest(conv domain.Conversation, model, userMessage string, opts SendOptions) (*domain.CompletionRequest, error) {
	history, err := g.store.Recent(conv.ID, g.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	if g.cfg.HistoryWindow == 0 {
		history = nil
	}

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = conv.Settings.SystemPrompt
	}
	if systemPrompt != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userMessage})

	req := &domain.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: conv.Settings.Temperature,
		MaxTokens:   conv.Settings.MaxTokens,
		Metadata:    map[string]string{"conversation_id": conv.ID},
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if g.tools != nil && !opts.DisableTools {
		req.Tools = g.tools.Definitions()
	}

	return req, nil
}

func (g *Gateway) limiter(providerID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[providerID]
	if !ok {
		limit := rate.Inf
		if g.cfg.RequestsPerSecond > 0 {
			limit = rate.Limit(g.cfg.RequestsPerSecond)
		}
		l = rate.NewLimiter(limit, g.cfg.Burst)
		g.limiters[providerID] = l
	}
	return l
}

// complete calls the provider, retrying with a linear backoff. Exhausting
// the retries counts as one failure on the registry.
func (g *Gateway) complete(
	ctx context.Context,
	providerID string,
	client domain.ProviderClient,
	req *domain.CompletionRequest,
) (*domain.CompletionResponse, error) {
	logger := observability.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*g.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}

		resp, err := client.Complete(ctx, req)
		if err == nil && resp != nil {
			return resp, nil
		}
		if err == nil {
			err = errors.New("provider returned an empty response")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		logger.Warn("provider call failed",
			observability.Int("attempt", attempt+1),
			observability.Int("max_attempts", g.cfg.MaxRetries+1),
			observability.Error(err))
	}

	g.registry.RecordFailure(ctx, providerID, lastErr)
	return nil, fmt.Errorf("provider %s: %w: %v", providerID, domain.ErrProviderUnavailable, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tokenUsage prefers the provider's counts and otherwise estimates them.
func tokenUsage(req *domain.CompletionRequest, resp *domain.CompletionResponse) (domain.TokenCount, bool) {
	if resp.Usage != nil && (resp.Usage.TotalTokens > 0 || resp.Usage.PromptTokens+resp.Usage.CompletionTokens > 0) {
		return domain.TokenCount{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		}, false
	}

	return domain.TokenCount{
		Input:  domain.EstimateMessagesTokens(req.Messages),
		Output: domain.EstimateTokens(resp.Content),
	}, true
}

func (g *Gateway) cost(
	ctx context.Context,
	client domain.ProviderClient,
	model string,
	resp *domain.CompletionResponse,
	usage domain.TokenCount,
) float64 {
	if resp.Usage != nil && resp.Usage.Cost > 0 {
		return resp.Usage.Cost
	}

	u := domain.Usage{
		PromptTokens:     usage.Input,
		CompletionTokens: usage.Output,
		TotalTokens:      usage.Total(),
	}
	fallback := client.CostPerThousandTokens()
	if g.calculator == nil {
		return domain.CostFor(u, fallback)
	}

	cost, err := g.calculator.Calculate(ctx, model, u, fallback)
	if err != nil {
		observability.FromContext(ctx).Warn("failed to calculate cost", observability.Error(err))
		return domain.CostFor(u, fallback)
	}
	return cost
}

func (g *Gateway) publish(ctx context.Context, payloads ...events.Payload) {
	if g.bus == nil {
		return
	}
	for _, p := range payloads {
		g.bus.Publish(ctx, p)
	}
}

func needsCredential(providerID string, cause error) *Response {
	message := "configure a provider credential"
	if providerID != "" {
		message = fmt.Sprintf("configure a credential for provider %s", providerID)
	}
	if cause != nil {
		message += ": " + cause.Error()
	}

	return &Response{
		Provider:        providerID,
		NeedsCredential: true,
		Failure: &domain.Failure{
			Kind:    domain.FailureNeedsSetup,
			Message: message,
		},
	}
}
