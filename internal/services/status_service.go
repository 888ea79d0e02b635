package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/metrics_collectors"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// StatsSource exposes the pipeline counters.
type StatsSource interface {
	Stats() models.PipelineStats
}

// StatusService periodically publishes the worker's pipeline counters and
// health metrics. A final "stopping" report is sent on Stop.
type StatusService struct {
	PubTopic      string
	ClientID      string
	Interval      time.Duration
	QOS           int
	Publisher     mqtt.Publisher
	Stats         StatsSource
	Registry      *metrics_collectors.MetricsRegistry
	MetricsConfig models.MetricsConfig
	Logger        zerolog.Logger

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusService initializes a new StatusService.
func NewStatusService(pubTopic, clientID string, interval time.Duration, qos int, publisher mqtt.Publisher,
	stats StatsSource, registry *metrics_collectors.MetricsRegistry, metricsConfig models.MetricsConfig,
	logger zerolog.Logger) *StatusService {

	return &StatusService{
		PubTopic:      pubTopic,
		ClientID:      clientID,
		Interval:      interval,
		QOS:           qos,
		Publisher:     publisher,
		Stats:         stats,
		Registry:      registry,
		MetricsConfig: metricsConfig,
		Logger:        logger.With().Str("component", "status-service").Logger(),
		now:           time.Now,
	}
}

// Start launches the status loop in a separate goroutine.
func (s *StatusService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}
	if s.Interval <= 0 {
		return errors.New("status interval must be positive")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStatusLoop()
	}()

	s.Logger.Info().Str("topic", s.PubTopic).Msg("StatusService started successfully")
	return nil
}

// Stop ends the loop and publishes a final report.
func (s *StatusService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	s.cancel()
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	s.publish(ctx, constants.StatusStopping)
	cancel()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("StatusService stopped successfully")
	return nil
}

func (s *StatusService) runStatusLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.publishTick()
	for {
		select {
		case <-ticker.C:
			s.publishTick()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *StatusService) publishTick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.Interval)
	defer cancel()
	s.publish(ctx, constants.StatusAlive)
}

// Report builds the current status message.
func (s *StatusService) Report(ctx context.Context, status string) models.WorkerStatus {
	report := models.WorkerStatus{
		ClientID:  s.ClientID,
		Timestamp: s.now().UTC(),
		Status:    status,
		Stats:     s.Stats.Stats(),
	}
	if s.Registry != nil {
		report.Metrics = s.Registry.CollectAll(ctx, &s.MetricsConfig)
	}
	return report
}

func (s *StatusService) publish(ctx context.Context, status string) {
	payload, err := json.Marshal(s.Report(ctx, status))
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to serialize status message")
		return
	}

	if err := s.Publisher.Publish(ctx, s.PubTopic, byte(s.QOS), false, payload); err != nil {
		s.Logger.Error().Err(err).Str("status", status).Msg("Failed to publish status message")
		return
	}
	s.Logger.Debug().Str("status", status).Msg("Status published successfully")
}
