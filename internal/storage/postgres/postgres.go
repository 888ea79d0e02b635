package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/storage"
	"github.com/rs/zerolog"
)

var readingColumns = []string{
	"sensor_id", "organization_id", "timestamp", "value",
	"parameter", "protocol", "quality", "notes", "metadata",
}

const (
	insertReadingSQL = `INSERT INTO readings (sensor_id, organization_id, timestamp, value, parameter, protocol, quality, notes, metadata)
VALUES ($1, $2, COALESCE($3, now()), $4, $5, $6, $7, $8, $9)
RETURNING timestamp`

	sensorByIDSQL = `SELECT s.id, s.asset_id, a.organization_id, s.name, s.threshold_low, s.threshold_high
FROM sensors s JOIN assets a ON s.asset_id = a.id
WHERE s.id = $1 AND a.organization_id = $2`

	allSensorsSQL = `SELECT s.id, s.asset_id, a.organization_id, s.name, s.threshold_low, s.threshold_high
FROM sensors s JOIN assets a ON s.asset_id = a.id`

	insertAlertSQL = `INSERT INTO alerts (sensor_id, organization_id, severity, message, trigger_value, threshold_value, acknowledged, protocol, metadata)
VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
RETURNING id, timestamp`
)

// Store implements the reading, sensor and alert stores on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// New connects a pool to dsn and verifies it with a ping.
func New(ctx context.Context, dsn string, maxConns int32, logger zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	logger = logger.With().Str("component", "postgres").Logger()
	logger.Info().Int32("max_conns", cfg.MaxConns).Msg("Connected to database")
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Insert(ctx context.Context, reading models.Reading) (models.Reading, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, insertReadingSQL, readingRow(reading)...).Scan(&ts)
	if err != nil {
		return models.Reading{}, fmt.Errorf("insert reading for sensor %d: %w", reading.SensorID, err)
	}
	reading.Timestamp = ts
	return reading, nil
}

// BulkInsert writes readings with a single COPY.
func (s *Store) BulkInsert(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return storage.ErrEmptyBatch
	}

	rows := copyRows(readings, time.Now())
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"readings"}, readingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("bulk insert %d readings: %w", len(readings), err)
	}
	s.logger.Debug().Int64("rows", n).Msg("Bulk inserted readings")
	return nil
}

func (s *Store) GetByID(ctx context.Context, sensorID int64, orgID string) (models.Sensor, error) {
	sensor, err := scanSensor(s.pool.QueryRow(ctx, sensorByIDSQL, sensorID, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sensor{}, storage.ErrSensorNotFound
	}
	if err != nil {
		return models.Sensor{}, fmt.Errorf("get sensor %d: %w", sensorID, err)
	}
	return sensor, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.Sensor, error) {
	rows, err := s.pool.Query(ctx, allSensorsSQL)
	if err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	defer rows.Close()

	var sensors []models.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sensors: %w", err)
	}
	return sensors, nil
}

func (s *Store) Create(ctx context.Context, input models.AlertInput) (models.Alert, error) {
	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	alert := models.Alert{
		SensorID:       input.SensorID,
		OrganizationID: input.OrganizationID,
		Severity:       input.Severity,
		Message:        input.Message,
		Value:          input.Value,
		ThresholdValue: input.ThresholdValue,
		Protocol:       input.Protocol,
		Metadata:       metadata,
	}
	err := s.pool.QueryRow(ctx, insertAlertSQL,
		input.SensorID, input.OrganizationID, string(input.Severity), input.Message,
		input.Value, input.ThresholdValue, string(input.Protocol), metadata,
	).Scan(&alert.ID, &alert.Timestamp)
	if err != nil {
		return models.Alert{}, fmt.Errorf("create alert for sensor %d: %w", input.SensorID, err)
	}
	return alert, nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

func scanSensor(row pgx.Row) (models.Sensor, error) {
	var sensor models.Sensor
	err := row.Scan(&sensor.ID, &sensor.AssetID, &sensor.OrganizationID, &sensor.Name,
		&sensor.ThresholdLow, &sensor.ThresholdHigh)
	return sensor, err
}

func readingRow(r models.Reading) []any {
	var ts *time.Time
	if !r.Timestamp.IsZero() {
		ts = &r.Timestamp
	}
	return []any{
		r.SensorID, r.OrganizationID, ts, r.Value,
		string(r.Parameter), string(r.Protocol), string(r.Quality), nullableText(r.Notes), metadataOrEmpty(r.Metadata),
	}
}

// copyRows fills missing timestamps with now since COPY bypasses column defaults.
func copyRows(readings []models.Reading, now time.Time) [][]any {
	rows := make([][]any, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		rows = append(rows, []any{
			r.SensorID, r.OrganizationID, r.Timestamp, r.Value,
			string(r.Parameter), string(r.Protocol), string(r.Quality), nullableText(r.Notes), metadataOrEmpty(r.Metadata),
		})
	}
	return rows
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
