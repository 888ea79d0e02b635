package storage

import (
	"context"
	"errors"

	"github.com/moondesk/ingest-worker/internal/models"
)

var (
	// ErrSensorNotFound is returned when a sensor does not exist in the requested organization.
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrEmptyBatch is returned by BulkInsert for an empty slice.
	ErrEmptyBatch = errors.New("bulk insert requires at least one reading")
)

// ReadingStore persists telemetry.
type ReadingStore interface {
	Insert(ctx context.Context, reading models.Reading) (models.Reading, error)
	BulkInsert(ctx context.Context, readings []models.Reading) error
}

// SensorStore looks up sensor thresholds.
type SensorStore interface {
	// GetByID returns ErrSensorNotFound when the sensor is unknown to orgID.
	GetByID(ctx context.Context, sensorID int64, orgID string) (models.Sensor, error)
	// ListAll returns every sensor across all organizations.
	ListAll(ctx context.Context) ([]models.Sensor, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	Create(ctx context.Context, input models.AlertInput) (models.Alert, error)
}

// Store bundles the stores a driver provides.
type Store interface {
	ReadingStore
	SensorStore
	AlertStore
	Close()
}
