// Package registry tracks registered providers, their health, cost counters
// and which one is active.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/breaker"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/routing"
)

// Definition describes a provider to register.
type Definition struct {
	ID            string
	DisplayName   string
	DefaultModel  string
	Models        []domain.Model
	Pricing       map[string]domain.PricingConfig
	HasCredential bool
}

type entry struct {
	provider domain.Provider
	client   domain.ProviderClient
	breaker  *breaker.Breaker
}

// Registry implements domain.ProviderRegistry.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	bus      events.Publisher
	pricing  domain.PricingRegistry
	selector domain.FailoverSelector

	order    []string
	entries  map[string]*entry
	activeID string
	history  []domain.SwitchRecord
	global   domain.CostTracking
	warned   map[string]bool
}

// NewRegistry creates a new provider registry.
func NewRegistry(cfg Config, bus events.Publisher, pricing domain.PricingRegistry) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		bus:      bus,
		pricing:  pricing,
		selector: routing.NewRouter(),
		entries:  make(map[string]*entry),
		warned:   make(map[string]bool),
	}
}

// WithSelector replaces the failover selector.
func (r *Registry) WithSelector(selector domain.FailoverSelector) *Registry {
	r.mu.Lock()
	r.selector = selector
	r.mu.Unlock()
	return r
}

// Register adds a provider. A provider without a client never has a credential.
func (r *Registry) Register(ctx context.Context, def Definition, client domain.ProviderClient) error {
	if def.ID == "" {
		return errors.New("provider id cannot be empty")
	}

	models := def.Models
	if len(models) == 0 && client != nil {
		models = client.Models()
	}

	model := def.DefaultModel
	if model == "" && len(models) > 0 {
		model = models[0].ID
	}

	displayName := def.DisplayName
	if displayName == "" {
		displayName = def.ID
	}

	r.mu.Lock()
	if _, exists := r.entries[def.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("provider %s already registered", def.ID)
	}

	b := breaker.New(breaker.Config{
		Threshold: r.cfg.FailureThreshold,
		Cooldown:  r.cfg.BreakerCooldown,
	})

	r.entries[def.ID] = &entry{
		provider: domain.Provider{
			ID:                 def.ID,
			DisplayName:        displayName,
			Status:             domain.StatusDisconnected,
			Model:              model,
			AvailableModels:    slices.Clone(models),
			HasCredential:      def.HasCredential && client != nil,
			LastStatusChangeAt: time.Now(),
		},
		client:  client,
		breaker: b,
	}
	r.order = append(r.order, def.ID)
	r.mu.Unlock()

	r.registerPricing(ctx, def.Pricing)

	observability.FromContext(observability.WithProvider(ctx, def.ID)).Info("provider registered",
		observability.String("model", model),
		observability.Bool("has_credential", def.HasCredential && client != nil))

	return nil
}

func (r *Registry) registerPricing(ctx context.Context, pricing map[string]domain.PricingConfig) {
	if r.pricing == nil {
		return
	}

	for model, cfg := range pricing {
		if err := r.pricing.RegisterPricing(ctx, model, cfg); err != nil {
			observability.FromContext(ctx).Warn("failed to register pricing",
				observability.String("model", model),
				observability.Error(err))
		}
	}
}

// Initialize connects every credentialed provider and selects the initial
// active provider when none is set.
func (r *Registry) Initialize(ctx context.Context) error {
	for _, id := range r.ids() {
		r.connect(ctx, id)
	}

	if r.ActiveID() != "" {
		return nil
	}

	initial := r.initialProvider()
	if initial == "" {
		observability.FromContext(ctx).Warn("no provider available to activate")
		return nil
	}

	if _, err := r.SwitchActiveProvider(ctx, initial, "initialization", ""); err != nil {
		return fmt.Errorf("failed to activate initial provider: %w", err)
	}

	return nil
}

func (r *Registry) connect(ctx context.Context, id string) {
	r.mu.Lock()
	e := r.entries[id]
	if !e.provider.HasCredential || e.client == nil {
		r.mu.Unlock()
		return
	}
	pending := r.setStatusLocked(e, domain.StatusConnecting, "")
	client := e.client
	r.mu.Unlock()
	r.publish(ctx, pending...)

	err := client.Probe(ctx)

	r.mu.Lock()
	if err != nil {
		e.provider.LastError = err.Error()
		pending = r.setStatusLocked(e, domain.StatusError, err.Error())
	} else {
		e.provider.LastError = ""
		pending = r.setStatusLocked(e, domain.StatusConnected, "")
	}
	r.mu.Unlock()
	r.publish(ctx, pending...)

	if err != nil {
		observability.FromContext(observability.WithProvider(ctx, id)).Warn("provider failed to connect",
			observability.Error(err))
	}
}

func (r *Registry) initialProvider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.entries[r.cfg.DefaultProvider]; ok {
		return r.cfg.DefaultProvider
	}

	for _, id := range r.order {
		if r.entries[id].provider.Status == domain.StatusConnected {
			return id
		}
	}

	if len(r.order) > 0 {
		return r.order[0]
	}

	return ""
}

// Get returns a snapshot of a provider.
func (r *Registry) Get(providerID string) (domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[providerID]
	if !ok {
		return domain.Provider{}, fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}

	return snapshot(e), nil
}

// List returns snapshots of all providers in registration order.
func (r *Registry) List() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, snapshot(r.entries[id]))
	}
	return out
}

// Active returns the active provider, if any.
func (r *Registry) Active() (domain.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[r.activeID]
	if !ok {
		return domain.Provider{}, false
	}
	return snapshot(e), true
}

// ActiveID returns the active provider id, empty when none is active.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// HasProvider reports whether providerID is registered.
func (r *Registry) HasProvider(providerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[providerID]
	return ok
}

// Client returns the client handle of a provider.
func (r *Registry) Client(providerID string) (domain.ProviderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[providerID]
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}
	if e.client == nil || !e.provider.HasCredential {
		return nil, fmt.Errorf("provider %s: %w", providerID, domain.ErrMissingCredential)
	}
	return e.client, nil
}

// SetModel selects the model a provider uses.
func (r *Registry) SetModel(ctx context.Context, providerID, modelID string) error {
	r.mu.Lock()
	e, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}
	if !e.provider.HasModel(modelID) {
		r.mu.Unlock()
		return fmt.Errorf("model %s on provider %s: %w", modelID, providerID, domain.ErrUnknownModel)
	}
	e.provider.Model = modelID
	r.mu.Unlock()

	observability.FromContext(observability.WithModel(observability.WithProvider(ctx, providerID), modelID)).
		Info("provider model changed")

	return nil
}

// SetCredential records whether a provider has a usable credential. Losing
// the credential forces the provider to disconnected.
func (r *Registry) SetCredential(ctx context.Context, providerID string, present bool) error {
	r.mu.Lock()
	e, ok := r.entries[providerID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("provider %s: %w", providerID, domain.ErrUnknownProvider)
	}
	if present && e.client == nil {
		r.mu.Unlock()
		return fmt.Errorf("provider %s has no client: %w", providerID, domain.ErrMissingCredential)
	}

	var pending []events.Payload
	if e.provider.HasCredential != present {
		e.provider.HasCredential = present
		pending = append(pending, events.ProviderCredentialChangedPayload{
			ProviderID:    providerID,
			HasCredential: present,
		})
	}
	if !present {
		e.breaker.Reset()
		e.provider.ConsecutiveFailures = 0
		pending = append(pending, r.setStatusLocked(e, domain.StatusDisconnected, "")...)
	}
	r.mu.Unlock()

	r.publish(ctx, pending...)
	return nil
}

// MarkUsed stamps the provider's last-used time.
func (r *Registry) MarkUsed(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[providerID]; ok {
		e.provider.LastUsedAt = time.Now()
	}
}

// ApplyCatalog refreshes display names, models and pricing of registered
// providers. Unknown ids are skipped. It returns the number of providers updated.
func (r *Registry) ApplyCatalog(ctx context.Context, defs []Definition) int {
	updated := 0

	for _, def := range defs {
		r.mu.Lock()
		e, ok := r.entries[def.ID]
		if !ok {
			r.mu.Unlock()
			observability.FromContext(observability.WithProvider(ctx, def.ID)).
				Debug("catalog entry for unregistered provider skipped")
			continue
		}

		if def.DisplayName != "" {
			e.provider.DisplayName = def.DisplayName
		}
		if len(def.Models) > 0 {
			e.provider.AvailableModels = slices.Clone(def.Models)
			if !e.provider.HasModel(e.provider.Model) {
				e.provider.Model = def.DefaultModel
				if e.provider.Model == "" {
					e.provider.Model = def.Models[0].ID
				}
			}
		}
		r.mu.Unlock()

		r.registerPricing(ctx, def.Pricing)
		updated++
	}

	return updated
}

func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// setStatusLocked must be called with r.mu held. It returns the events to
// publish once the lock is released.
func (r *Registry) setStatusLocked(e *entry, status domain.ProviderStatus, errMsg string) []events.Payload {
	previous := e.provider.Status
	if previous == status {
		return nil
	}

	e.provider.Status = status
	e.provider.LastStatusChangeAt = time.Now()

	return []events.Payload{events.ProviderStatusChangedPayload{
		ProviderID:     e.provider.ID,
		Status:         status,
		PreviousStatus: previous,
		Error:          errMsg,
	}}
}

func (r *Registry) publish(ctx context.Context, payloads ...events.Payload) {
	if r.bus == nil {
		return
	}
	for _, p := range payloads {
		r.bus.Publish(ctx, p)
	}
}

func snapshot(e *entry) domain.Provider {
	p := e.provider
	p.AvailableModels = slices.Clone(e.provider.AvailableModels)
	p.BreakerState = string(e.breaker.State())
	return p
}
