package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/storage"
	"github.com/moondesk/ingest-worker/pkg/file"
)

// Store keeps readings, sensors and alerts in process memory.
type Store struct {
	mu       sync.RWMutex
	readings []models.Reading
	alerts   []models.Alert
	sensors  map[int64]models.Sensor
	nextID   int64
	now      func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sensors: make(map[int64]models.Sensor),
		now:     time.Now,
	}
}

// PutSensor adds or replaces a sensor.
func (s *Store) PutSensor(sensor models.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors[sensor.ID] = sensor
}

// LoadSensors adds the sensors listed in a JSON array file.
func (s *Store) LoadSensors(fileClient file.FileOperations, path string) (int, error) {
	var sensors []models.Sensor
	if err := fileClient.ReadJsonFile(path, &sensors); err != nil {
		return 0, fmt.Errorf("load sensors from %s: %w", path, err)
	}
	for _, sensor := range sensors {
		if sensor.OrganizationID == "" {
			return 0, fmt.Errorf("load sensors from %s: sensor %d has no organization", path, sensor.ID)
		}
	}
	for _, sensor := range sensors {
		s.PutSensor(sensor)
	}
	return len(sensors), nil
}

func (s *Store) Insert(ctx context.Context, reading models.Reading) (models.Reading, error) {
	if err := ctx.Err(); err != nil {
		return models.Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	}
	s.readings = append(s.readings, reading)
	return reading, nil
}

func (s *Store) BulkInsert(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return storage.ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, readings...)
	return nil
}

func (s *Store) GetByID(ctx context.Context, sensorID int64, orgID string) (models.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensor, ok := s.sensors[sensorID]
	if !ok || sensor.OrganizationID != orgID {
		return models.Sensor{}, storage.ErrSensorNotFound
	}
	return sensor, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensors := make([]models.Sensor, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		sensors = append(sensors, sensor)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors, nil
}

func (s *Store) Create(ctx context.Context, input models.AlertInput) (models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return models.Alert{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	alert := models.Alert{
		ID:             s.nextID,
		SensorID:       input.SensorID,
		OrganizationID: input.OrganizationID,
		Timestamp:      s.now(),
		Severity:       input.Severity,
		Message:        input.Message,
		Value:          input.Value,
		ThresholdValue: input.ThresholdValue,
		Protocol:       input.Protocol,
		Metadata:       input.Metadata,
	}
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

// Readings returns a copy of every stored reading in insertion order.
func (s *Store) Readings() []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Reading(nil), s.readings...)
}

// Alerts returns a copy of every stored alert in creation order.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

func (s *Store) Close() {}
