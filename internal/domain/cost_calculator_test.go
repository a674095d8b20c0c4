package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
)

func TestStandardCostCalculator_Calculate(t *testing.T) {
	ctx := context.Background()
	registry := domain.NewInMemoryPricingRegistry()

	// Register test pricing
	err := registry.RegisterPricing(ctx, "test-model", domain.PricingConfig{
		InputCostPer1K:  0.01,
		OutputCostPer1K: 0.02,
	})
	require.NoError(t, err)

	calculator := domain.NewStandardCostCalculator(registry)

	tests := []struct {
		name         string
		model        string
		usage        domain.Usage
		fallback     domain.PricingConfig
		expectedCost float64
		expectError  bool
	}{
		{
			name:  "calculate cost for known model",
			model: "test-model",
			usage: domain.Usage{
				PromptTokens:     1000,
				CompletionTokens: 500,
			},
			expectedCost: 0.02, // (1000/1000 * 0.01) + (500/1000 * 0.02)
		},
		{
			name:  "registered pricing wins over fallback",
			model: "test-model",
			usage: domain.Usage{
				PromptTokens:     1000,
				CompletionTokens: 500,
			},
			fallback:     domain.PricingConfig{InputCostPer1K: 1, OutputCostPer1K: 1},
			expectedCost: 0.02,
		},
		{
			name:  "unknown model without fallback returns zero cost",
			model: "unknown-model",
			usage: domain.Usage{
				PromptTokens:     1000,
				CompletionTokens: 500,
			},
			expectedCost: 0,
		},
		{
			name:  "unknown model uses fallback rates",
			model: "unknown-model",
			usage: domain.Usage{
				PromptTokens:     2000,
				CompletionTokens: 1000,
			},
			fallback:     domain.PricingConfig{InputCostPer1K: 0.005, OutputCostPer1K: 0.015},
			expectedCost: 0.025, // (2 * 0.005) + (1 * 0.015)
		},
		{
			name:        "empty model returns error",
			model:       "",
			usage:       domain.Usage{},
			expectError: true,
		},
		{
			name:  "zero tokens returns zero cost",
			model: "test-model",
			usage: domain.Usage{
				PromptTokens:     0,
				CompletionTokens: 0,
			},
			expectedCost: 0,
		},
		{
			name:  "partial tokens calculation",
			model: "test-model",
			usage: domain.Usage{
				PromptTokens:     250,
				CompletionTokens: 100,
			},
			expectedCost: 0.0045, // (250/1000 * 0.01) + (100/1000 * 0.02)
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testCost, testErr := calculator.Calculate(ctx, tt.model, tt.usage, tt.fallback)

			if tt.expectError {
				require.Error(t, testErr)
				return
			}

			require.NoError(t, testErr)
			require.InDelta(t, tt.expectedCost, testCost, 0.0001)
		})
	}
}

func TestInMemoryPricingRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("should return registered rates", func(t *testing.T) {
		registry := domain.NewInMemoryPricingRegistry()
		rates := domain.PricingConfig{InputCostPer1K: 0.03, OutputCostPer1K: 0.06}

		require.NoError(t, registry.RegisterPricing(ctx, "gpt-4", rates))

		got, err := registry.GetPricing(ctx, "gpt-4")
		require.NoError(t, err)
		require.Equal(t, rates, got)
	})

	t.Run("should report unpriced models as unknown", func(t *testing.T) {
		registry := domain.NewInMemoryPricingRegistry()

		_, err := registry.GetPricing(ctx, "non-existent-model")
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})

	t.Run("should reject invalid registrations", func(t *testing.T) {
		registry := domain.NewInMemoryPricingRegistry()

		require.Error(t, registry.RegisterPricing(ctx, "", domain.PricingConfig{InputCostPer1K: 0.01}))
		require.Error(t, registry.RegisterPricing(ctx, "m", domain.PricingConfig{OutputCostPer1K: -1}))

		_, err := registry.GetPricing(ctx, "m")
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})

	t.Run("should let later registrations win", func(t *testing.T) {
		registry := domain.NewInMemoryPricingRegistry()

		require.NoError(t, registry.RegisterPricing(ctx, "test-model", domain.PricingConfig{InputCostPer1K: 0.01, OutputCostPer1K: 0.02}))
		require.NoError(t, registry.RegisterPricing(ctx, "test-model", domain.PricingConfig{InputCostPer1K: 0.05, OutputCostPer1K: 0.10}))

		got, err := registry.GetPricing(ctx, "test-model")
		require.NoError(t, err)
		require.InDelta(t, 0.05, got.InputCostPer1K, 1e-9)
		require.InDelta(t, 0.10, got.OutputCostPer1K, 1e-9)
	})
}
