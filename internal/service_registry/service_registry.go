package service_registry

import (
	"errors"
	"fmt"

	"github.com/moondesk/ingest-worker/internal/metrics_collectors"
	"github.com/moondesk/ingest-worker/internal/services"
	"github.com/moondesk/ingest-worker/internal/utils"
	"github.com/moondesk/ingest-worker/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Transport is what the worker's services need from the broker connection.
type Transport interface {
	services.Subscriber
	mqtt.Publisher
}

// Pipeline is the ingestion engine as seen by the services.
type Pipeline interface {
	services.MessageProcessor
	services.StatsSource
}

// Dependencies are the shared components the services are built from.
type Dependencies struct {
	Transport   Transport
	Pipeline    Pipeline
	Thresholds  services.ThresholdSource
	StatusTopic string
	Metrics     *metrics_collectors.MetricsRegistry
}

// ServiceRegistry manages the lifecycle of the worker's services.
type ServiceRegistry struct {
	services    map[string]services.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes an empty service registry.
func NewServiceRegistry(logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]services.Service),
		Logger:   logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc services.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Names returns the registered service names in start order.
func (sr *ServiceRegistry) Names() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices builds and registers the enabled services. The threshold
// refresher starts before the subscriber so the first messages hit a warm cache.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deps Dependencies) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (services.Service, error)
	}{
		{
			name:    "threshold-refresher",
			enabled: true,
			constructor: func() (services.Service, error) {
				if deps.Thresholds == nil {
					return nil, errors.New("threshold source is required")
				}
				return services.NewThresholdRefresher(
					config.Ingestion.ThresholdRefreshInterval,
					deps.Thresholds,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "ingestion",
			enabled: true,
			constructor: func() (services.Service, error) {
				if deps.Transport == nil || deps.Pipeline == nil {
					return nil, errors.New("transport and pipeline are required")
				}
				return services.NewIngestionService(
					config.MQTT.Organizations,
					config.Ingestion.Workers,
					config.Ingestion.QueueSize,
					deps.Transport,
					deps.Pipeline,
					sr.Logger,
				), nil
			},
		},
		{
			name:    "status",
			enabled: config.Status.Enabled,
			constructor: func() (services.Service, error) {
				if deps.StatusTopic == "" {
					return nil, errors.New("status topic is required")
				}
				return services.NewStatusService(
					deps.StatusTopic,
					config.MQTT.ClientID,
					config.Status.Interval,
					config.Status.QOS,
					deps.Transport,
					deps.Pipeline,
					deps.Metrics,
					config.Status.Metrics,
					sr.Logger,
				), nil
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if !svc.enabled {
			continue
		}
		serviceInstance, err := svc.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
			return fmt.Errorf("create %s service: %w", svc.name, err)
		}
		sr.RegisterService(svc.name, serviceInstance)
		registeredServices = append(registeredServices, svc.name)
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
