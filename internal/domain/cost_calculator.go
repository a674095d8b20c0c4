package domain

import (
	"context"
	"errors"
	"fmt"
)

const tokensToPerK = 1000.0

// StandardCostCalculator implements standard token-based cost calculation.
type StandardCostCalculator struct {
	pricingRegistry PricingRegistry
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(registry PricingRegistry) *StandardCostCalculator {
	return &StandardCostCalculator{
		pricingRegistry: registry,
	}
}

// Calculate computes the total cost based on token usage and model pricing.
func (c *StandardCostCalculator) Calculate(
	ctx context.Context,
	model string,
	usage Usage,
	fallback PricingConfig,
) (float64, error) {
	if model == "" {
		return 0, errors.New("model cannot be empty")
	}

	pricing, err := c.pricingRegistry.GetPricing(ctx, model)
	switch {
	case errors.Is(err, ErrUnknownModel):
		// Unpriced models are billed at the provider's default rates.
		pricing = fallback
	case err != nil:
		return 0, fmt.Errorf("failed to look up pricing: %w", err)
	}

	return CostFor(usage, pricing), nil
}

// CostFor applies per-1K rates to a usage record.
func CostFor(usage Usage, pricing PricingConfig) float64 {
	inputCost := float64(usage.PromptTokens) / tokensToPerK * pricing.InputCostPer1K
	outputCost := float64(usage.CompletionTokens) / tokensToPerK * pricing.OutputCostPer1K
	return inputCost + outputCost
}
