package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of mqtt.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	args := m.Called(ctx, topic, qos, retained, payload)
	return args.Error(0)
}

func (m *MockPublisher) PublishCommand(ctx context.Context, orgID string, sensorID int64, command any) error {
	args := m.Called(ctx, orgID, sensorID, command)
	return args.Error(0)
}
