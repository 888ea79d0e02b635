package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when an operation needs a live broker connection.
var ErrNotConnected = errors.New("mqtt client is not connected")

// MQTTClient defines the subset of the paho client used by MqttService.
type MQTTClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Options configures the broker connection.
type Options struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	QoS               byte
	CleanSession      bool
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	DisconnectQuiesce uint
}

// MqttService owns the single broker connection of the worker.
type MqttService struct {
	client MQTTClient
	scheme TopicScheme
	opts   Options
	logger zerolog.Logger

	mu      sync.RWMutex
	handler MessageHandler
	filters []string
}

// NewMqttService creates a service whose paho client is built from opts.
func NewMqttService(opts Options, scheme TopicScheme, logger zerolog.Logger) *MqttService {
	s := newService(opts, scheme, logger)
	s.client = mqtt.NewClient(s.clientOptions())
	return s
}

// NewMqttServiceWithClient creates a service around an existing client.
func NewMqttServiceWithClient(client MQTTClient, opts Options, scheme TopicScheme, logger zerolog.Logger) *MqttService {
	s := newService(opts, scheme, logger)
	s.client = client
	return s
}

func newService(opts Options, scheme TopicScheme, logger zerolog.Logger) *MqttService {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	return &MqttService{
		scheme: scheme,
		opts:   opts,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}
}

// clientOptions sets up auto-reconnect with a capped interval. The initial
// connect is not retried so a bad broker fails startup.
func (s *MqttService) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.opts.Broker)
	opts.SetClientID(s.opts.ClientID)
	if s.opts.Username != "" {
		opts.SetUsername(s.opts.Username)
		opts.SetPassword(s.opts.Password)
	}
	opts.SetCleanSession(s.opts.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(s.opts.ReconnectInterval)
	opts.SetConnectTimeout(s.opts.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) { s.onConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Error().Err(err).Msg("Connection to broker lost")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		s.logger.Warn().Msg("Reconnecting to broker")
	})
	return opts
}

// Connect opens the broker connection, waiting at most the connect timeout.
func (s *MqttService) Connect() error {
	s.logger.Info().Str("broker", s.opts.Broker).Str("client_id", s.opts.ClientID).Msg("Connecting to broker")

	token := s.client.Connect()
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		return fmt.Errorf("connect to %s: timed out after %s", s.opts.Broker, s.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", s.opts.Broker, err)
	}

	s.logger.Info().Msg("Connected to broker")
	return nil
}

// IsConnected reports whether the broker connection is up.
func (s *MqttService) IsConnected() bool {
	return s.client.IsConnected()
}

// SetMessageHandler registers the callback for inbound messages, replacing any previous one.
func (s *MqttService) SetMessageHandler(handler MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SubscribeToTopics subscribes at the configured QoS to the sensor topics of
// orgIDs, or of every organization when orgIDs is empty. The filters are
// re-subscribed after every reconnect.
func (s *MqttService) SubscribeToTopics(orgIDs []string) error {
	filters := s.subscriptionFilters(orgIDs)

	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()

	return s.subscribe(filters)
}

func (s *MqttService) subscriptionFilters(orgIDs []string) []string {
	if len(orgIDs) == 0 {
		return []string{s.scheme.SubscriptionTopic("")}
	}
	filters := make([]string, 0, len(orgIDs))
	for _, org := range orgIDs {
		filters = append(filters, s.scheme.SubscriptionTopic(org))
	}
	return filters
}

func (s *MqttService) subscribe(filters []string) error {
	for _, filter := range filters {
		token := s.client.Subscribe(filter, s.opts.QoS, s.onMessage)
		if !token.WaitTimeout(s.opts.ConnectTimeout) {
			return fmt.Errorf("subscribe to %s: timed out", filter)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe to %s: %w", filter, err)
		}
		s.logger.Info().Str("filter", filter).Uint8("qos", s.opts.QoS).Msg("Subscribed")
	}
	return nil
}

// Unsubscribe removes every active subscription.
func (s *MqttService) Unsubscribe() error {
	s.mu.Lock()
	filters := s.filters
	s.filters = nil
	s.mu.Unlock()

	if len(filters) == 0 {
		return nil
	}
	token := s.client.Unsubscribe(filters...)
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		return fmt.Errorf("unsubscribe: timed out")
	}
	return token.Error()
}

func (s *MqttService) onConnect() {
	s.mu.RLock()
	filters := append([]string(nil), s.filters...)
	s.mu.RUnlock()

	if len(filters) == 0 {
		return
	}
	// Subscribing blocks on the network, so it must not run on paho's callback goroutine.
	go func() {
		if err := s.subscribe(filters); err != nil {
			s.logger.Error().Err(err).Msg("Failed to restore subscriptions after reconnect")
		}
	}()
}

func (s *MqttService) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		s.logger.Debug().Str("topic", msg.Topic()).Msg("No handler registered, dropping message")
		return
	}
	handler(msg.Topic(), msg.Payload())
}

// Publish sends payload to topic and waits for the broker, or for ctx.
func (s *MqttService) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	token := s.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// PublishCommand publishes command as JSON to the sensor's command topic at QoS 1.
func (s *MqttService) PublishCommand(ctx context.Context, orgID string, sensorID int64, command any) error {
	data, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("serialize command: %w", err)
	}

	topic := s.scheme.CommandTopic(orgID, sensorID)
	if err := s.Publish(ctx, topic, 1, false, data); err != nil {
		return err
	}

	s.logger.Info().Str("topic", topic).Msg("Command published")
	return nil
}

// Disconnect closes the connection after waiting up to the quiesce period for in-flight work.
func (s *MqttService) Disconnect() {
	s.client.Disconnect(s.opts.DisconnectQuiesce)
	s.logger.Info().Msg("Disconnected from broker")
}
