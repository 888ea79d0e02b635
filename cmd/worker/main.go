package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/moondesk/ingest-worker/internal/broadcast"
	"github.com/moondesk/ingest-worker/internal/cache"
	"github.com/moondesk/ingest-worker/internal/ingestion"
	"github.com/moondesk/ingest-worker/internal/metrics_collectors"
	"github.com/moondesk/ingest-worker/internal/parser"
	"github.com/moondesk/ingest-worker/internal/service_registry"
	"github.com/moondesk/ingest-worker/internal/storage"
	"github.com/moondesk/ingest-worker/internal/storage/memory"
	"github.com/moondesk/ingest-worker/internal/storage/postgres"
	"github.com/moondesk/ingest-worker/internal/utils"
	"github.com/moondesk/ingest-worker/pkg/file"
	"github.com/moondesk/ingest-worker/pkg/mqtt"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	os.Exit(run(*configPath, os.Stdout, waitForSignal))
}

func waitForSignal() string {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	return (<-stopCh).String()
}

// run returns the process exit code. Every failure goes through the deferred
// cleanups, so a rotating log file is flushed and closed before exit.
func run(configPath string, out io.Writer, wait func() string) int {
	fileClient := file.NewFileService()

	// Load configuration from file, .env and the environment
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	log, logCloser, err := utils.NewLogger(config, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	if err := serve(config, fileClient, log, wait); err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Worker failed")
		return 1
	}
	return 0
}

func serve(config *utils.Config, fileClient file.FileOperations, log zerolog.Logger, wait func() string) error {
	// A clean session gets a unique client id; a persistent one keeps the configured id
	config.MQTT.ClientID = config.SessionClientID(uuid.New().String())
	log.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	ctx := context.Background()

	store, err := openStore(ctx, config, fileClient, log)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", config.Storage.Driver, err)
	}
	defer store.Close()

	broadcaster, err := broadcast.New(broadcast.Options{
		Driver:         config.Broadcast.Driver,
		URL:            config.Broadcast.URL,
		Token:          config.Broadcast.Token,
		ChannelPrefix:  config.Broadcast.ChannelPrefix,
		ConnectRetries: config.Broadcast.ConnectAttempts,
		RetryDelay:     config.Broadcast.ConnectDelay,
		WriteTimeout:   config.Broadcast.WriteTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("create broadcaster: %w", err)
	}
	// Broadcasting is best-effort; ingestion runs without it.
	if err := broadcaster.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("driver", config.Broadcast.Driver).Msg("Broadcast connector unavailable, continuing without it")
	}
	closeBroadcaster := func() {
		if err := broadcaster.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close broadcaster")
		}
	}

	topics := parser.NewTopicParser(config.MQTT.Namespace)
	thresholds := cache.NewThresholdCache(store, log)
	engine := ingestion.NewEngine(topics, store, store, thresholds, broadcaster, log)

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(mqtt.Options{
		Broker:            config.MQTT.Broker,
		ClientID:          config.MQTT.ClientID,
		Username:          config.MQTT.Username,
		Password:          config.MQTT.Password,
		QoS:               byte(config.MQTT.QOS),
		CleanSession:      config.MQTT.CleanSession,
		ConnectTimeout:    config.MQTT.ConnectTimeout,
		ReconnectInterval: config.MQTT.ReconnectInterval,
		DisconnectQuiesce: config.MQTT.DisconnectQuiesce,
	}, topics, log)
	if err := mqttClient.Connect(); err != nil {
		closeBroadcaster()
		return fmt.Errorf("connect to MQTT broker %s: %w", config.MQTT.Broker, err)
	}
	defer mqttClient.Disconnect()
	defer closeBroadcaster()

	serviceRegistry := service_registry.NewServiceRegistry(log)
	err = serviceRegistry.RegisterServices(config, service_registry.Dependencies{
		Transport:   mqttClient,
		Pipeline:    engine,
		Thresholds:  thresholds,
		StatusTopic: topics.WorkerStatusTopic(config.MQTT.ClientID),
		Metrics:     metrics_collectors.NewDefaultRegistry(log),
	})
	if err != nil {
		return fmt.Errorf("register services: %w", err)
	}
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	sig := wait()
	log.Info().Str("signal", sig).Msg("Shutting down gracefully...")

	// Deferred calls then close the broadcaster, the broker connection and the store, in that order.
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Services did not stop cleanly")
	}

	stats := engine.Stats()
	log.Info().
		Uint64("received", stats.Received).
		Uint64("alerts", stats.AlertsCreated).
		Uint64("failures", stats.Failures).
		Msg("Worker stopped")
	return nil
}

func openStore(ctx context.Context, config *utils.Config, fileClient file.FileOperations, log zerolog.Logger) (storage.Store, error) {
	switch config.Storage.Driver {
	case "memory":
		store := memory.New()
		if config.Storage.SeedFile != "" {
			n, err := store.LoadSensors(fileClient, config.Storage.SeedFile)
			if err != nil {
				return nil, err
			}
			log.Info().Int("sensors", n).Str("file", config.Storage.SeedFile).Msg("Loaded sensors into memory store")
		}
		log.Warn().Msg("Using in-memory storage; data is lost on exit")
		return store, nil
	case "postgres":
		return postgres.New(ctx, config.Storage.DSN, config.Storage.MaxConns, log)
	}
	return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
}
