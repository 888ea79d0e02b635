package ingestion

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/parser"
	"github.com/moondesk/ingest-worker/internal/storage"
	"github.com/rs/zerolog"
)

// Broadcaster forwards engine output to real-time consumers. Implementations
// handle and log their own failures.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// ThresholdLookup resolves the bounds of a sensor.
type ThresholdLookup interface {
	Get(ctx context.Context, sensorID int64, orgID string) (models.ThresholdBounds, bool, error)
}

// Engine turns raw (topic, payload) pairs into persisted readings, alerts and broadcasts.
// It holds no per-message state and is safe for concurrent use.
type Engine struct {
	topics      *parser.TopicParser
	readings    storage.ReadingStore
	alerts      storage.AlertStore
	thresholds  ThresholdLookup
	broadcaster Broadcaster
	protocol    models.Protocol
	now         func() time.Time
	logger      zerolog.Logger

	received         atomic.Uint64
	dropped          atomic.Uint64
	readingsStored   atomic.Uint64
	batchesStored    atomic.Uint64
	alertsCreated    atomic.Uint64
	commandResponses atomic.Uint64
	failures         atomic.Uint64
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProtocol sets the protocol recorded on readings and alerts. Defaults to mqtt.
func WithProtocol(p models.Protocol) Option {
	return func(e *Engine) { e.protocol = p }
}

// NewEngine wires an Engine.
func NewEngine(topics *parser.TopicParser, readings storage.ReadingStore, alerts storage.AlertStore,
	thresholds ThresholdLookup, broadcaster Broadcaster, logger zerolog.Logger, opts ...Option) *Engine {

	e := &Engine{
		topics:      topics,
		readings:    readings,
		alerts:      alerts,
		thresholds:  thresholds,
		broadcaster: broadcaster,
		protocol:    models.ProtocolMQTT,
		now:         time.Now,
		logger:      logger.With().Str("component", "ingestion").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage processes one inbound message. It never returns an error and
// never panics; every failure is logged and the message is dropped.
func (e *Engine) HandleMessage(ctx context.Context, topic string, payload []byte) {
	e.received.Add(1)
	log := e.logger.With().Str("message_id", uuid.NewString()).Str("topic", topic).Logger()

	parsed, ok := e.topics.Parse(topic)
	if !ok {
		e.dropped.Add(1)
		log.Warn().Msg("Unable to parse topic")
		return
	}

	log = log.With().Str("organization_id", parsed.OrganizationID).Int64("sensor_id", parsed.SensorID).Logger()

	switch parsed.Action {
	case constants.ActionReadings:
		e.runPath(log, "single reading", func() error { return e.handleReading(ctx, log, parsed, payload) })
	case constants.ActionBatch:
		e.runPath(log, "batch readings", func() error { return e.handleBatch(ctx, log, parsed, payload) })
	case constants.ActionCommandResponse:
		e.runPath(log, "command response", func() error { return e.handleCommandResponse(log, parsed, payload) })
	default:
		log.Debug().Str("action", parsed.Action).Msg("Unhandled action type")
	}
}

// runPath isolates one processing path: errors and panics are logged, never propagated.
func (e *Engine) runPath(log zerolog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.failures.Add(1)
			log.Error().Interface("panic", r).Msgf("Panic while processing %s", name)
		}
	}()

	if err := fn(); err != nil {
		e.failures.Add(1)
		log.Error().Err(err).Msgf("Error processing %s", name)
	}
}

func (e *Engine) handleReading(ctx context.Context, log zerolog.Logger, parsed parser.ParsedTopic, payload []byte) error {
	msg, ok := parser.DecodeReading(payload)
	if !ok {
		e.dropped.Add(1)
		log.Warn().Msg("Invalid reading message")
		return nil
	}

	reading := e.buildReading(msg, parsed.SensorID, parsed.OrganizationID)
	stored, err := e.readings.Insert(ctx, reading)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	e.readingsStored.Add(1)
	log.Debug().Float64("value", stored.Value).Msg("Reading ingested")

	e.evaluate(ctx, log, parsed.OrganizationID, parsed.SensorID, msg.Value)

	e.broadcaster.Broadcast(constants.EventReading, models.NewReadingEvent(stored))
	return nil
}

func (e *Engine) handleBatch(ctx context.Context, log zerolog.Logger, parsed parser.ParsedTopic, payload []byte) error {
	msg, ok := parser.DecodeBatch(payload)
	if !ok || len(msg.Readings) == 0 {
		e.dropped.Add(1)
		log.Warn().Msg("Invalid or empty batch message")
		return nil
	}

	readings := make([]models.Reading, 0, len(msg.Readings))
	for _, rm := range msg.Readings {
		sensorID := parsed.SensorID
		if rm.SensorID != nil && *rm.SensorID != 0 {
			sensorID = *rm.SensorID
		}
		readings = append(readings, e.buildReading(rm, sensorID, parsed.OrganizationID))
	}

	if err := e.readings.BulkInsert(ctx, readings); err != nil {
		return fmt.Errorf("bulk insert %d readings: %w", len(readings), err)
	}
	e.batchesStored.Add(1)
	e.readingsStored.Add(uint64(len(readings)))
	log.Info().Int("count", len(readings)).Msg("Batch readings ingested")

	events := make([]models.ReadingEvent, 0, len(readings))
	for _, r := range readings {
		e.evaluate(ctx, log, r.OrganizationID, r.SensorID, r.Value)
		events = append(events, models.NewReadingEvent(r))
	}

	e.broadcaster.Broadcast(constants.EventReadingBatch, events)
	return nil
}

func (e *Engine) handleCommandResponse(log zerolog.Logger, parsed parser.ParsedTopic, payload []byte) error {
	msg, ok := parser.DecodeCommandResponse(payload)
	if !ok {
		e.dropped.Add(1)
		log.Warn().Msg("Invalid command response")
		return nil
	}
	e.commandResponses.Add(1)

	log.Info().Int64("command_id", msg.CommandID).Str("status", string(msg.Status)).Msg("Command response received")

	e.broadcaster.Broadcast(constants.EventCommandStatus, models.CommandStatusEvent{
		ID:             msg.CommandID,
		SensorID:       parsed.SensorID,
		OrganizationID: parsed.OrganizationID,
		Status:         msg.Status,
		Result:         msg.Result,
		Error:          msg.Error,
		CompletedAt:    e.now(),
	})
	return nil
}

// evaluate runs CheckThresholds for one value and logs, rather than returns, any failure.
func (e *Engine) evaluate(ctx context.Context, log zerolog.Logger, orgID string, sensorID int64, value float64) {
	defer func() {
		if r := recover(); r != nil {
			e.failures.Add(1)
			log.Error().Interface("panic", r).Int64("evaluated_sensor_id", sensorID).Msg("Panic while checking thresholds")
		}
	}()

	if _, err := e.CheckThresholds(ctx, orgID, sensorID, value); err != nil {
		e.failures.Add(1)
		log.Error().Err(err).Int64("evaluated_sensor_id", sensorID).Msg("Error checking thresholds")
	}
}

// CheckThresholds compares value with the cached bounds of the sensor and creates an
// alert on a strict violation. The high bound wins when both are crossed. It returns
// the created alert, or nil when no alert was raised.
func (e *Engine) CheckThresholds(ctx context.Context, orgID string, sensorID int64, value float64) (*models.Alert, error) {
	bounds, ok, err := e.thresholds.Get(ctx, sensorID, orgID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	input, violated := e.violation(bounds, value)
	if !violated {
		return nil, nil
	}
	input.SensorID = sensorID
	input.OrganizationID = orgID

	alert, err := e.alerts.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	e.alertsCreated.Add(1)

	e.logger.Info().
		Int64("sensor_id", sensorID).
		Int64("alert_id", alert.ID).
		Str("severity", string(alert.Severity)).
		Msg("Alert created")

	e.broadcaster.Broadcast(constants.EventAlert, models.NewAlertEvent(alert))
	return &alert, nil
}

func (e *Engine) violation(bounds models.ThresholdBounds, value float64) (models.AlertInput, bool) {
	var (
		severity  models.Severity
		message   string
		threshold float64
	)
	switch {
	case bounds.High != nil && value > *bounds.High:
		severity, threshold = models.SeverityCritical, *bounds.High
		message = fmt.Sprintf("Value %v exceeds maximum threshold %v", value, threshold)
	case bounds.Low != nil && value < *bounds.Low:
		severity, threshold = models.SeverityWarning, *bounds.Low
		message = fmt.Sprintf("Value %v below minimum threshold %v", value, threshold)
	default:
		return models.AlertInput{}, false
	}

	return models.AlertInput{
		Severity:       severity,
		Message:        message,
		Value:          value,
		ThresholdValue: &threshold,
		Protocol:       e.protocol,
		Metadata:       map[string]string{},
	}, true
}

func (e *Engine) buildReading(msg parser.ReadingMessage, sensorID int64, orgID string) models.Reading {
	reading := models.Reading{
		SensorID:       sensorID,
		OrganizationID: orgID,
		Value:          msg.Value,
		Parameter:      msg.Parameter,
		Protocol:       e.protocol,
		Quality:        msg.Quality,
		Metadata:       msg.Metadata,
	}
	if msg.Timestamp != nil {
		reading.Timestamp = *msg.Timestamp
	} else {
		reading.Timestamp = e.now()
	}
	if reading.Parameter == "" {
		reading.Parameter = models.ParameterNone
	}
	if reading.Quality == "" {
		reading.Quality = models.QualityGood
	}
	if reading.Metadata == nil {
		reading.Metadata = map[string]string{}
	}
	return reading
}

// Stats returns a snapshot of the pipeline counters.
func (e *Engine) Stats() models.PipelineStats {
	return models.PipelineStats{
		Received:         e.received.Load(),
		Dropped:          e.dropped.Load(),
		ReadingsStored:   e.readingsStored.Load(),
		BatchesStored:    e.batchesStored.Load(),
		AlertsCreated:    e.alertsCreated.Load(),
		CommandResponses: e.commandResponses.Load(),
		Failures:         e.failures.Load(),
	}
}
