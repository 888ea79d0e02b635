package mqtt

import "context"

// Publisher is the narrow publish capability services depend on.
type Publisher interface {
	// Publish sends payload to topic and waits until the broker acknowledges it
	// according to qos, or ctx is done.
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// CommandPublisher sends commands to individual sensors.
type CommandPublisher interface {
	// PublishCommand serialises command and publishes it to the sensor's command topic at QoS 1.
	PublishCommand(ctx context.Context, orgID string, sensorID int64, command any) error
}

// TopicScheme maps organizations and sensors to broker topics.
type TopicScheme interface {
	SubscriptionTopic(orgID string) string
	CommandTopic(orgID string, sensorID int64) string
}

// MessageHandler receives every inbound message.
type MessageHandler func(topic string, payload []byte)
