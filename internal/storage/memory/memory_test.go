package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/storage"
	"github.com/moondesk/ingest-worker/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertDefaultsTimestamp(t *testing.T) {
	s := New()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	stored, err := s.Insert(context.Background(), models.Reading{SensorID: 1, OrganizationID: "org", Value: 2})

	require.NoError(t, err)
	assert.Equal(t, fixed, stored.Timestamp)
	assert.Len(t, s.Readings(), 1)
}

func TestStore_BulkInsertRejectsEmpty(t *testing.T) {
	s := New()

	err := s.BulkInsert(context.Background(), nil)

	assert.ErrorIs(t, err, storage.ErrEmptyBatch)
}

func TestStore_GetByIDScopesByOrganization(t *testing.T) {
	s := New()
	high := 80.0
	s.PutSensor(models.Sensor{ID: 101, OrganizationID: "org_1", ThresholdHigh: &high})

	sensor, err := s.GetByID(context.Background(), 101, "org_1")
	require.NoError(t, err)
	assert.Equal(t, &high, sensor.Bounds().High)

	_, err = s.GetByID(context.Background(), 101, "org_2")
	assert.ErrorIs(t, err, storage.ErrSensorNotFound)

	_, err = s.GetByID(context.Background(), 5, "org_1")
	assert.ErrorIs(t, err, storage.ErrSensorNotFound)
}

func TestStore_CreateAssignsSequentialIDs(t *testing.T) {
	s := New()

	first, err := s.Create(context.Background(), models.AlertInput{SensorID: 1, Severity: models.SeverityWarning})
	require.NoError(t, err)
	second, err := s.Create(context.Background(), models.AlertInput{SensorID: 1, Severity: models.SeverityCritical})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, second.Acknowledged)
	assert.Len(t, s.Alerts(), 2)
}

func TestStore_ListAllSortedByID(t *testing.T) {
	s := New()
	s.PutSensor(models.Sensor{ID: 3, OrganizationID: "b"})
	s.PutSensor(models.Sensor{ID: 1, OrganizationID: "a"})

	sensors, err := s.ListAll(context.Background())

	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, int64(1), sensors[0].ID)
	assert.Equal(t, int64(3), sensors[1].ID)
}

func TestStore_LoadSensors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sensors.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 4, "organizationId": "org_1", "name": "pH", "thresholdLow": 6.5, "thresholdHigh": 8.5},
		{"id": 5, "organizationId": "org_2", "name": "tank level"}
	]`), 0o600))

	s := New()
	n, err := s.LoadSensors(file.NewFileService(), path)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	sensor, err := s.GetByID(context.Background(), 4, "org_1")
	require.NoError(t, err)
	require.NotNil(t, sensor.ThresholdHigh)
	assert.Equal(t, 8.5, *sensor.ThresholdHigh)

	_, err = s.GetByID(context.Background(), 4, "org_2")
	assert.ErrorIs(t, err, storage.ErrSensorNotFound)
}

func TestStore_LoadSensorsRejectsMissingOrganization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": 4}]`), 0o600))

	s := New()
	_, err := s.LoadSensors(file.NewFileService(), path)

	assert.ErrorContains(t, err, "has no organization")
	assert.Empty(t, s.sensors)
}
