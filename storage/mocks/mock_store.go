package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/johnwmail/pastebin/models"
)

// MockPasteStore is a testify mock of storage.PasteStore.
type MockPasteStore struct {
	mock.Mock
}

func (m *MockPasteStore) Put(ctx context.Context, id string, paste *models.Paste) error {
	args := m.Called(ctx, id, paste)
	return args.Error(0)
}

func (m *MockPasteStore) Get(ctx context.Context, id string) (*models.Paste, error) {
	args := m.Called(ctx, id)
	if f, ok := args.Get(0).(func(context.Context, string) *models.Paste); ok {
		return f(ctx, id), args.Error(1)
	}
	p, _ := args.Get(0).(*models.Paste)
	return p, args.Error(1)
}

func (m *MockPasteStore) IncrementViews(ctx context.Context, id string) (*models.Paste, error) {
	args := m.Called(ctx, id)
	if f, ok := args.Get(0).(func(context.Context, string) *models.Paste); ok {
		return f(ctx, id), args.Error(1)
	}
	p, _ := args.Get(0).(*models.Paste)
	return p, args.Error(1)
}

func (m *MockPasteStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPasteStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
