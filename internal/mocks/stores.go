package mocks

import (
	"context"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockReadingStore is a mock implementation of storage.ReadingStore
type MockReadingStore struct {
	mock.Mock
}

func (m *MockReadingStore) Insert(ctx context.Context, reading models.Reading) (models.Reading, error) {
	args := m.Called(ctx, reading)
	if fn, ok := args.Get(0).(func(context.Context, models.Reading) models.Reading); ok {
		errFn, _ := args.Get(1).(func(context.Context, models.Reading) error)
		if errFn == nil {
			return fn(ctx, reading), args.Error(1)
		}
		return fn(ctx, reading), errFn(ctx, reading)
	}
	return args.Get(0).(models.Reading), args.Error(1)
}

func (m *MockReadingStore) BulkInsert(ctx context.Context, readings []models.Reading) error {
	args := m.Called(ctx, readings)
	return args.Error(0)
}

// MockSensorStore is a mock implementation of storage.SensorStore
type MockSensorStore struct {
	mock.Mock
}

func (m *MockSensorStore) GetByID(ctx context.Context, sensorID int64, orgID string) (models.Sensor, error) {
	args := m.Called(ctx, sensorID, orgID)
	return args.Get(0).(models.Sensor), args.Error(1)
}

func (m *MockSensorStore) ListAll(ctx context.Context) ([]models.Sensor, error) {
	args := m.Called(ctx)
	sensors, _ := args.Get(0).([]models.Sensor)
	return sensors, args.Error(1)
}

// MockAlertStore is a mock implementation of storage.AlertStore
type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) Create(ctx context.Context, input models.AlertInput) (models.Alert, error) {
	args := m.Called(ctx, input)
	if fn, ok := args.Get(0).(func(context.Context, models.AlertInput) models.Alert); ok {
		errFn, _ := args.Get(1).(func(context.Context, models.AlertInput) error)
		if errFn == nil {
			return fn(ctx, input), args.Error(1)
		}
		return fn(ctx, input), errFn(ctx, input)
	}
	return args.Get(0).(models.Alert), args.Error(1)
}
