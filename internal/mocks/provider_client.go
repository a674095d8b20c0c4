// Package mocks contains testify mocks of the domain collaborator interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
)

// MockProviderClient is a mock implementation of domain.ProviderClient.
type MockProviderClient struct {
	mock.Mock
}

// Complete implements domain.ProviderClient.
func (m *MockProviderClient) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.CompletionResponse)
	return resp, args.Error(1)
}

// Models implements domain.ProviderClient.
func (m *MockProviderClient) Models() []domain.Model {
	args := m.Called()
	models, _ := args.Get(0).([]domain.Model)
	return models
}

// CostPerThousandTokens implements domain.ProviderClient.
func (m *MockProviderClient) CostPerThousandTokens() domain.PricingConfig {
	args := m.Called()
	pricing, _ := args.Get(0).(domain.PricingConfig)
	return pricing
}

// Probe implements domain.ProviderClient.
func (m *MockProviderClient) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
