package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of domain.Persistence.
type MockPersistence struct {
	mock.Mock
}

// Get implements domain.Persistence.
func (m *MockPersistence) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Set implements domain.Persistence.
func (m *MockPersistence) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
