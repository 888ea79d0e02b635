package services

import (
	"context"
	"errors"
	"sync"

	"github.com/moondesk/ingest-worker/internal/utils"
	"github.com/moondesk/ingest-worker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Subscriber is the inbound side of the transport connector.
type Subscriber interface {
	SetMessageHandler(handler mqtt.MessageHandler)
	SubscribeToTopics(orgIDs []string) error
	Unsubscribe() error
}

// MessageProcessor handles one inbound message end to end.
type MessageProcessor interface {
	HandleMessage(ctx context.Context, topic string, payload []byte)
}

// IngestionService subscribes to sensor topics and dispatches every message
// to the processor through a bounded worker pool.
type IngestionService struct {
	Organizations []string
	Workers       int
	QueueSize     int
	Subscriber    Subscriber
	Processor     MessageProcessor
	Logger        zerolog.Logger

	mu     sync.Mutex
	pool   *utils.WorkerPool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewIngestionService initializes a new IngestionService.
func NewIngestionService(organizations []string, workers, queueSize int, subscriber Subscriber,
	processor MessageProcessor, logger zerolog.Logger) *IngestionService {

	return &IngestionService{
		Organizations: organizations,
		Workers:       workers,
		QueueSize:     queueSize,
		Subscriber:    subscriber,
		Processor:     processor,
		Logger:        logger.With().Str("component", "ingestion-service").Logger(),
	}
}

// Start registers the message handler and subscribes to the configured organizations.
func (s *IngestionService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.Logger.Warn().Msg("IngestionService is already running")
		return errors.New("ingestion service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.pool = utils.NewWorkerPool(s.Workers, s.QueueSize)

	pool, ctx := s.pool, s.ctx
	s.Subscriber.SetMessageHandler(func(topic string, payload []byte) {
		err := pool.Submit(func() {
			s.Processor.HandleMessage(ctx, topic, payload)
		})
		if err != nil {
			s.Logger.Debug().Err(err).Str("topic", topic).Msg("Dropping message received during shutdown")
		}
	})

	if err := s.Subscriber.SubscribeToTopics(s.Organizations); err != nil {
		s.Subscriber.SetMessageHandler(nil)
		s.pool.Shutdown()
		s.cancel()
		s.ctx, s.cancel, s.pool = nil, nil, nil
		return err
	}

	s.Logger.Info().
		Strs("organizations", s.Organizations).
		Int("workers", s.Workers).
		Msg("IngestionService started successfully")
	return nil
}

// Stop unsubscribes, then waits for queued messages to finish processing.
func (s *IngestionService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.Logger.Warn().Msg("IngestionService is not running")
		return errors.New("ingestion service is not running")
	}

	if err := s.Subscriber.Unsubscribe(); err != nil {
		s.Logger.Error().Err(err).Msg("Failed to unsubscribe from sensor topics")
	}
	s.Subscriber.SetMessageHandler(nil)

	// Queued messages still need a live context for their store calls.
	s.pool.Shutdown()
	s.cancel()

	s.ctx, s.cancel, s.pool = nil, nil, nil

	s.Logger.Info().Msg("IngestionService stopped successfully")
	return nil
}
