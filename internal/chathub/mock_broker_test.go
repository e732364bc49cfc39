package chathub

import (
	"context"

	"travelquest/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(ctx context.Context, ev models.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockBroker) Subscribe(ctx context.Context) (<-chan models.Event, error) {
	args := m.Called(ctx)
	if ch := args.Get(0); ch != nil {
		return ch.(<-chan models.Event), args.Error(1)
	}
	return nil, args.Error(1)
}
