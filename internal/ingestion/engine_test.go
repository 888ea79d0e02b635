package ingestion

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moondesk/ingest-worker/internal/cache"
	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/mocks"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/parser"
	"github.com/moondesk/ingest-worker/internal/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

type staticThresholds struct {
	bounds map[int64]models.ThresholdBounds
	err    error
}

func (s staticThresholds) Get(_ context.Context, sensorID int64, _ string) (models.ThresholdBounds, bool, error) {
	if s.err != nil {
		return models.ThresholdBounds{}, false, s.err
	}
	b, ok := s.bounds[sensorID]
	return b, ok, nil
}

type fixture struct {
	readings    *mocks.MockReadingStore
	alerts      *mocks.MockAlertStore
	broadcaster *mocks.RecordingBroadcaster
	engine      *Engine
	logs        *bytes.Buffer
}

func newFixture(thresholds ThresholdLookup) *fixture {
	f := &fixture{
		readings:    new(mocks.MockReadingStore),
		alerts:      new(mocks.MockAlertStore),
		broadcaster: new(mocks.RecordingBroadcaster),
		logs:        new(bytes.Buffer),
	}
	logger := zerolog.New(f.logs)
	f.engine = NewEngine(parser.NewTopicParser(""), f.readings, f.alerts, thresholds, f.broadcaster, logger,
		WithClock(func() time.Time { return fixedNow }))
	return f
}

func echoInsert(f *fixture) {
	f.readings.On("Insert", mock.Anything, mock.Anything).Return(
		func(_ context.Context, r models.Reading) models.Reading { return r },
		func(_ context.Context, _ models.Reading) error { return nil },
	)
}

func echoAlert(f *fixture) {
	f.alerts.On("Create", mock.Anything, mock.Anything).Return(
		func(_ context.Context, in models.AlertInput) models.Alert {
			return models.Alert{ID: 1, SensorID: in.SensorID, OrganizationID: in.OrganizationID, Timestamp: fixedNow,
				Severity: in.Severity, Message: in.Message, Value: in.Value, ThresholdValue: in.ThresholdValue,
				Protocol: in.Protocol, Metadata: in.Metadata}
		},
		func(_ context.Context, _ models.AlertInput) error { return nil },
	)
}

func TestCheckThresholds(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		severity  models.Severity
		threshold float64
		alert     bool
	}{
		{"above high", 35, models.SeverityCritical, 30, true},
		{"below low", 5, models.SeverityWarning, 10, true},
		{"in range", 20, "", 0, false},
		{"equal to high", 30, "", 0, false},
		{"equal to low", 10, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{1: {Low: ptr(10), High: ptr(30)}}})
			echoAlert(f)

			// Execute
			alert, err := f.engine.CheckThresholds(context.Background(), "org", 1, tt.value)

			// Assert
			require.NoError(t, err)
			if !tt.alert {
				assert.Nil(t, alert)
				f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				assert.Empty(t, f.broadcaster.Events(constants.EventAlert))
				return
			}
			require.NotNil(t, alert)
			f.alerts.AssertNumberOfCalls(t, "Create", 1)
			assert.Equal(t, tt.severity, alert.Severity)
			require.NotNil(t, alert.ThresholdValue)
			assert.Equal(t, tt.threshold, *alert.ThresholdValue)
			assert.Equal(t, tt.value, alert.Value)
			assert.Equal(t, models.ProtocolMQTT, alert.Protocol)
			assert.Equal(t, map[string]string{}, alert.Metadata)
			assert.Len(t, f.broadcaster.Events(constants.EventAlert), 1)
		})
	}
}

func TestCheckThresholds_HighWinsWhenMisconfigured(t *testing.T) {
	f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{1: {Low: ptr(50), High: ptr(10)}}})
	echoAlert(f)

	alert, err := f.engine.CheckThresholds(context.Background(), "org", 1, 20)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, 10.0, *alert.ThresholdValue)
}

func TestCheckThresholds_OpenBounds(t *testing.T) {
	f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{1: {High: ptr(50)}, 2: {}}})
	echoAlert(f)

	alert, err := f.engine.CheckThresholds(context.Background(), "org", 1, -1000)
	require.NoError(t, err)
	assert.Nil(t, alert)

	alert, err = f.engine.CheckThresholds(context.Background(), "org", 2, 1e9)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestCheckThresholds_UnknownSensorIsNoop(t *testing.T) {
	f := newFixture(staticThresholds{})

	alert, err := f.engine.CheckThresholds(context.Background(), "org", 404, 1e9)

	require.NoError(t, err)
	assert.Nil(t, alert)
	f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleMessage_SingleReadingDefaults(t *testing.T) {
	f := newFixture(staticThresholds{})
	echoInsert(f)

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/7/readings", []byte(`{"sensorId":999,"value":3.5}`))

	f.readings.AssertNumberOfCalls(t, "Insert", 1)
	stored := f.readings.Calls[0].Arguments.Get(1).(models.Reading)
	assert.Equal(t, int64(7), stored.SensorID)
	assert.Equal(t, "org_1", stored.OrganizationID)
	assert.Equal(t, fixedNow, stored.Timestamp)
	assert.Equal(t, models.ParameterNone, stored.Parameter)
	assert.Equal(t, models.QualityGood, stored.Quality)
	assert.Equal(t, models.ProtocolMQTT, stored.Protocol)
	assert.Equal(t, map[string]string{}, stored.Metadata)

	events := f.broadcaster.Events(constants.EventReading)
	require.Len(t, events, 1)
	event := events[0].Payload.(models.ReadingEvent)
	assert.Equal(t, int64(7), event.SensorID)
	assert.Equal(t, int64(0), event.AssetID)
	assert.Equal(t, 3.5, event.Value)
}

func TestHandleMessage_SingleReadingKeepsPayloadTimestamp(t *testing.T) {
	f := newFixture(staticThresholds{})
	echoInsert(f)

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/7/readings",
		[]byte(`{"value":1,"timestamp":"2024-01-02T03:04:05Z","quality":"simulated"}`))

	stored := f.readings.Calls[0].Arguments.Get(1).(models.Reading)
	assert.True(t, stored.Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, models.QualitySimulated, stored.Quality)
}

func TestHandleMessage_BatchSingleBulkInsertAndBroadcast(t *testing.T) {
	// Setup
	f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{
		5: {High: ptr(10)},
		8: {Low: ptr(0)},
	}})
	f.readings.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	echoAlert(f)
	payload := `{"readings":[{"sensorId":5,"value":11},{"value":3},{"sensorId":0,"value":-1}]}`

	// Execute
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/8/batch", []byte(payload))

	// Assert
	f.readings.AssertNumberOfCalls(t, "BulkInsert", 1)
	f.readings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	inserted := f.readings.Calls[0].Arguments.Get(1).([]models.Reading)
	require.Len(t, inserted, 3)
	assert.Equal(t, int64(5), inserted[0].SensorID)
	assert.Equal(t, int64(8), inserted[1].SensorID)
	assert.Equal(t, int64(8), inserted[2].SensorID)

	batches := f.broadcaster.Events(constants.EventReadingBatch)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Payload.([]models.ReadingEvent), 3)
	assert.Len(t, f.broadcaster.Events(constants.EventAlert), 2)
	f.alerts.AssertNumberOfCalls(t, "Create", 2)
}

func TestHandleMessage_BatchEvaluationFailureIsIsolated(t *testing.T) {
	f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{1: {High: ptr(0)}}})
	f.readings.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	f.alerts.On("Create", mock.Anything, mock.Anything).Return(models.Alert{}, errors.New("alerts table locked")).Once()
	echoAlert(f)

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/batch",
		[]byte(`{"readings":[{"value":1},{"value":2},{"value":3}]}`))

	f.alerts.AssertNumberOfCalls(t, "Create", 3)
	assert.Len(t, f.broadcaster.Events(constants.EventAlert), 2)
	assert.Len(t, f.broadcaster.Events(constants.EventReadingBatch), 1)
	assert.Contains(t, f.logs.String(), `"level":"error"`)
}

func TestHandleMessage_EmptyBatchDropped(t *testing.T) {
	f := newFixture(staticThresholds{})

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/batch", []byte(`{"readings":[]}`))
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/batch", []byte(`{}`))

	f.readings.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
	assert.Empty(t, f.broadcaster.Calls())
	assert.Equal(t, uint64(2), f.engine.Stats().Dropped)
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
}

func TestHandleMessage_BulkInsertFailureSkipsEvaluation(t *testing.T) {
	f := newFixture(staticThresholds{bounds: map[int64]models.ThresholdBounds{1: {High: ptr(0)}}})
	f.readings.On("BulkInsert", mock.Anything, mock.Anything).Return(errors.New("copy failed"))

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/batch", []byte(`{"readings":[{"value":1}]}`))

	f.alerts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, f.broadcaster.Calls())
	assert.Contains(t, f.logs.String(), "copy failed")
}

func TestHandleMessage_CommandResponse(t *testing.T) {
	f := newFixture(staticThresholds{})

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/4/command-response",
		[]byte(`{"commandId":12,"status":"completed","result":"ok"}`))

	events := f.broadcaster.Events(constants.EventCommandStatus)
	require.Len(t, events, 1)
	status := events[0].Payload.(models.CommandStatusEvent)
	assert.Equal(t, int64(12), status.ID)
	assert.Equal(t, int64(4), status.SensorID)
	assert.Equal(t, "org_1", status.OrganizationID)
	assert.Equal(t, models.CommandStatusCompleted, status.Status)
	assert.Equal(t, "ok", *status.Result)
	assert.Equal(t, fixedNow, status.CompletedAt)
	f.readings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestHandleMessage_IgnoredInputs(t *testing.T) {
	f := newFixture(staticThresholds{})

	f.engine.HandleMessage(context.Background(), "garbage", []byte(`{"value":1}`))
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/status", []byte(`{"online":true}`))
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/readings", []byte(`{}`))
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/command-response", []byte(`{"commandId":1}`))

	assert.Empty(t, f.broadcaster.Calls())
	f.readings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	stats := f.engine.Stats()
	assert.Equal(t, uint64(4), stats.Received)
	assert.Equal(t, uint64(3), stats.Dropped)
	assert.Equal(t, uint64(0), stats.Failures)
}

func TestHandleMessage_StoreFailureIsolated(t *testing.T) {
	// Setup
	f := newFixture(staticThresholds{})
	f.readings.On("Insert", mock.Anything, mock.MatchedBy(func(r models.Reading) bool { return r.SensorID == 1 })).
		Return(models.Reading{}, errors.New("insert rejected"))
	f.readings.On("Insert", mock.Anything, mock.MatchedBy(func(r models.Reading) bool { return r.SensorID == 2 })).
		Return(func(_ context.Context, r models.Reading) models.Reading { return r },
			func(_ context.Context, _ models.Reading) error { return nil })

	// Execute
	assert.NotPanics(t, func() {
		f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/readings", []byte(`{"value":1}`))
	})
	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/2/readings", []byte(`{"value":2}`))

	// Assert
	assert.Contains(t, f.logs.String(), `"level":"error"`)
	assert.Contains(t, f.logs.String(), "insert rejected")
	assert.Contains(t, f.logs.String(), `"organization_id":"org_1"`)
	events := f.broadcaster.Events(constants.EventReading)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Payload.(models.ReadingEvent).SensorID)
	assert.Equal(t, uint64(1), f.engine.Stats().Failures)
}

func TestHandleMessage_PanicInStoreIsRecovered(t *testing.T) {
	f := newFixture(staticThresholds{})
	f.readings.On("Insert", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("driver bug") })

	assert.NotPanics(t, func() {
		f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/readings", []byte(`{"value":1}`))
	})
	assert.Contains(t, f.logs.String(), "driver bug")
}

func TestHandleMessage_ThresholdLookupFailureStillBroadcastsReading(t *testing.T) {
	f := newFixture(staticThresholds{err: errors.New("sensor lookup timeout")})
	echoInsert(f)

	f.engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/1/readings", []byte(`{"value":1}`))

	assert.Len(t, f.broadcaster.Events(constants.EventReading), 1)
	assert.Contains(t, f.logs.String(), "sensor lookup timeout")
}

func TestHandleMessage_EndToEnd(t *testing.T) {
	// Setup
	store := memory.New()
	store.PutSensor(models.Sensor{ID: 101, OrganizationID: "org_1", ThresholdHigh: ptr(80)})
	thresholds := cache.NewThresholdCache(store, zerolog.Nop())
	_, err := thresholds.RefreshAll(context.Background())
	require.NoError(t, err)
	broadcaster := new(mocks.RecordingBroadcaster)
	engine := NewEngine(parser.NewTopicParser(""), store, store, thresholds, broadcaster, zerolog.Nop())

	// Execute
	engine.HandleMessage(context.Background(), "moondesk/org_1/sensors/101/readings",
		[]byte(`{"value": 85, "parameter": "temperature"}`))

	// Assert
	readings := store.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, 85.0, readings[0].Value)
	assert.Equal(t, models.ParameterTemperature, readings[0].Parameter)

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "85")
	assert.Contains(t, alerts[0].Message, "80")
	assert.False(t, alerts[0].Acknowledged)

	assert.Len(t, broadcaster.Events(constants.EventReading), 1)
	alertEvents := broadcaster.Events(constants.EventAlert)
	require.Len(t, alertEvents, 1)
	event := alertEvents[0].Payload.(models.AlertEvent)
	assert.Equal(t, alerts[0].ID, event.ID)
	assert.Equal(t, 80.0, *event.Threshold)

	stats := engine.Stats()
	assert.Equal(t, uint64(1), stats.ReadingsStored)
	assert.Equal(t, uint64(1), stats.AlertsCreated)
}
