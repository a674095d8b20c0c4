package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/conversation"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/gateway"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/provider/registry"
)

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests.
type Handler struct {
	registry *registry.Registry
	store    *conversation.Store
	gateway  *gateway.Gateway
	bus      *events.Bus
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	reg *registry.Registry,
	store *conversation.Store,
	gw *gateway.Gateway,
	bus *events.Bus,
) *Handler {
	return &Handler{
		registry: reg,
		store:    store,
		gateway:  gw,
		bus:      bus,
	}
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/conversations", h.HandleCreateConversation)
	mux.HandleFunc("GET /v1/conversations", h.HandleListConversations)
	mux.HandleFunc("POST /v1/conversations/continue", h.HandleContinue)
	mux.HandleFunc("GET /v1/conversations/{id}", h.HandleGetConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", h.HandleDeleteConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", h.HandleSendMessage)
	mux.HandleFunc("POST /v1/conversations/{id}/compact", h.HandleCompact)
	mux.HandleFunc("POST /v1/conversations/{id}/clear", h.HandleClear)
	mux.HandleFunc("POST /v1/conversations/{id}/resume", h.HandleResume)
	mux.HandleFunc("POST /v1/conversations/{id}/provider", h.HandleSwitchProvider)
	mux.HandleFunc("GET /v1/providers", h.HandleListProviders)
	mux.HandleFunc("POST /v1/providers/active", h.HandleSwitchActiveProvider)
	mux.HandleFunc("GET /v1/events", h.HandleEvents)
	mux.HandleFunc("GET /health", h.HandleHealth)

	return mux
}

type createConversationRequest struct {
	Title        string   `json:"title"`
	Tags         []string `json:"tags"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"maxTokens"`
	SystemPrompt string   `json:"systemPrompt"`
}

// HandleCreateConversation creates a conversation and makes it current.
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	id, err := h.store.Create(r.Context(), conversation.CreateOptions{
		Title:        req.Title,
		Tags:         req.Tags,
		Provider:     req.Provider,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	conv, err := h.store.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, conv)
}

// HandleListConversations lists conversations, or searches them when q is set.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := query.Get("q")
	if q == "" {
		writeJSON(w, r, http.StatusOK, map[string]any{"conversations": h.store.List()})
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results := h.store.Search(q, conversation.SearchOptions{
		Type:  conversation.SearchType(query.Get("type")),
		Limit: limit,
	})
	writeJSON(w, r, http.StatusOK, map[string]any{"results": results})
}

// HandleGetConversation returns one conversation.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// HandleDeleteConversation removes a conversation.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content      string   `json:"content"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"maxTokens"`
	SystemPrompt string   `json:"systemPrompt"`
	DisableTools bool     `json:"disableTools"`
}

// HandleSendMessage sends a user message through the gateway.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeBadRequest(w, r, "content is required")
		return
	}

	id := r.PathValue("id")
	ctx := observability.WithConversationID(r.Context(), id)
	observability.FromContext(ctx).Info("message received", observability.Int("length", len(req.Content)))

	resp, err := h.gateway.Send(ctx, id, req.Content, gateway.SendOptions{
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
		DisableTools: req.DisableTools,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type compactRequest struct {
	Instructions string `json:"instructions"`
}

// HandleCompact summarizes older messages.
func (h *Handler) HandleCompact(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	conv, err := h.store.Compact(r.Context(), r.PathValue("id"), req.Instructions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// HandleClear drops a conversation's messages.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResume makes a conversation current.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.ResumeSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// HandleContinue makes the most recently updated conversation current.
func (h *Handler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.ContinueLast(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

type switchProviderRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
}

// HandleSwitchProvider makes a provider active for a conversation. The
// conversation follows through the active-provider-changed event.
func (h *Handler) HandleSwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req switchProviderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Provider == "" {
		writeBadRequest(w, r, "provider is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "user-request"
	}

	id := r.PathValue("id")
	if _, err := h.store.Get(id); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if req.Model != "" {
		if err := h.registry.SetModel(ctx, req.Provider, req.Model); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if _, err := h.registry.SwitchActiveProvider(ctx, req.Provider, req.Reason, id); err != nil {
		writeError(w, r, err)
		return
	}

	conv, err := h.store.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conv)
}

// HandleListProviders reports every provider, the active one and global usage.
func (h *Handler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"active":             h.registry.ActiveID(),
		"providers":          h.registry.List(),
		"globalCostTracking": h.registry.GlobalCostTracking(),
		"switchHistory":      h.registry.SwitchHistory(),
	})
}

type switchActiveRequest struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// HandleSwitchActiveProvider moves the registry's active pointer.
func (h *Handler) HandleSwitchActiveProvider(w http.ResponseWriter, r *http.Request) {
	var req switchActiveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Provider == "" {
		writeBadRequest(w, r, "provider is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "user-request"
	}

	record, err := h.registry.SwitchActiveProvider(r.Context(), req.Provider, req.Reason, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, record)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":         "healthy",
		"activeProvider": h.registry.ActiveID(),
		"events":         h.bus.Stats(),
	}
	writeJSON(w, r, http.StatusOK, status)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

type errorResponse struct {
	Error string             `json:"error"`
	Kind  domain.FailureKind `json:"kind,omitempty"`
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: message})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Classify(err)

	status := http.StatusInternalServerError
	switch kind {
	case domain.FailureNotFound:
		status = http.StatusNotFound
	case domain.FailureNeedsSetup:
		status = http.StatusUnprocessableEntity
	case domain.FailureTransient:
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, domain.ErrInvalidToolArguments) {
		status = http.StatusBadRequest
	}

	logger := observability.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", observability.Error(err))
	} else {
		logger.Info("request rejected", observability.Int("status", status), observability.Error(err))
	}

	writeJSON(w, r, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(r.Context()).Error("failed to encode response", observability.Error(err))
	}
}
