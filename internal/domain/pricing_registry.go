package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// InMemoryPricingRegistry keeps per-model rates. Later registrations replace
// earlier ones, so a reloaded catalog overrides built-in prices.
type InMemoryPricingRegistry struct {
	mu    sync.RWMutex
	rates map[string]PricingConfig
}

// NewInMemoryPricingRegistry creates an empty registry.
func NewInMemoryPricingRegistry() *InMemoryPricingRegistry {
	return &InMemoryPricingRegistry{rates: make(map[string]PricingConfig)}
}

// GetPricing returns the rates of model, or ErrUnknownModel.
func (r *InMemoryPricingRegistry) GetPricing(_ context.Context, model string) (PricingConfig, error) {
	r.mu.RLock()
	rates, ok := r.rates[model]
	r.mu.RUnlock()

	if !ok {
		return PricingConfig{}, fmt.Errorf("pricing for %s: %w", model, ErrUnknownModel)
	}
	return rates, nil
}

// RegisterPricing sets the rates of model. Negative rates are rejected.
func (r *InMemoryPricingRegistry) RegisterPricing(_ context.Context, model string, rates PricingConfig) error {
	if model == "" {
		return errors.New("model cannot be empty")
	}
	if rates.InputCostPer1K < 0 || rates.OutputCostPer1K < 0 {
		return fmt.Errorf("pricing for %s: rates cannot be negative", model)
	}

	r.mu.Lock()
	r.rates[model] = rates
	r.mu.Unlock()
	return nil
}
