package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
)

// MockToolExecutor is a mock implementation of domain.ToolExecutor.
type MockToolExecutor struct {
	mock.Mock
}

// Invoke implements domain.ToolExecutor.
func (m *MockToolExecutor) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	called := m.Called(ctx, name, args)
	return called.Get(0), called.Error(1)
}

// Definitions implements domain.ToolExecutor.
func (m *MockToolExecutor) Definitions() []domain.ToolDefinition {
	args := m.Called()
	defs, _ := args.Get(0).([]domain.ToolDefinition)
	return defs
}
