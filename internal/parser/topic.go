package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moondesk/ingest-worker/internal/constants"
)

// ParsedTopic is the routing information carried by an inbound topic.
type ParsedTopic struct {
	OrganizationID string
	SensorID       int64
	Action         string
}

// TopicParser recognises <namespace>/<organizationId>/sensors/<sensorId>/<action>.
type TopicParser struct {
	namespace string
}

// NewTopicParser returns a parser bound to namespace. An empty namespace uses the default.
func NewTopicParser(namespace string) *TopicParser {
	if namespace == "" {
		namespace = constants.DefaultNamespace
	}
	return &TopicParser{namespace: namespace}
}

// Namespace returns the first topic segment this parser accepts.
func (p *TopicParser) Namespace() string {
	return p.namespace
}

// Parse splits topic into its routing parts. ok is false for anything that is not
// exactly a five-segment sensor topic with a known action.
func (p *TopicParser) Parse(topic string) (ParsedTopic, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != constants.TopicSegments {
		return ParsedTopic{}, false
	}
	if parts[0] != p.namespace || parts[2] != constants.SensorsSegment {
		return ParsedTopic{}, false
	}

	orgID := parts[1]
	if orgID == "" {
		return ParsedTopic{}, false
	}

	// ParseUint rejects signs, so "-1" and "+1" fail here.
	sensorID, err := strconv.ParseUint(parts[3], 10, 63)
	if err != nil {
		return ParsedTopic{}, false
	}

	action := parts[4]
	if !isKnownAction(action) {
		return ParsedTopic{}, false
	}

	return ParsedTopic{
		OrganizationID: orgID,
		SensorID:       int64(sensorID),
		Action:         action,
	}, true
}

// SubscriptionTopic returns the wildcard filter for one organization, or for all
// organizations when orgID is empty.
func (p *TopicParser) SubscriptionTopic(orgID string) string {
	if orgID == "" {
		orgID = constants.WildcardAll
	}
	return fmt.Sprintf("%s/%s/%s/+/#", p.namespace, orgID, constants.SensorsSegment)
}

// CommandTopic returns the topic a sensor listens on for commands.
func (p *TopicParser) CommandTopic(orgID string, sensorID int64) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", p.namespace, orgID, constants.SensorsSegment, sensorID, constants.ActionCommands)
}

// SensorTopic builds an inbound sensor topic. Used by tooling that simulates devices.
func (p *TopicParser) SensorTopic(orgID string, sensorID int64, action string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", p.namespace, orgID, constants.SensorsSegment, sensorID, action)
}

// WorkerStatusTopic returns the topic a worker reports its status on. It sits
// outside the sensor subscription filter.
func (p *TopicParser) WorkerStatusTopic(clientID string) string {
	return fmt.Sprintf("%s/%s/%s/status", p.namespace, constants.WorkersSegment, clientID)
}

// ParseTopic parses topic under the default namespace.
func ParseTopic(topic string) (ParsedTopic, bool) {
	return defaultParser.Parse(topic)
}

var defaultParser = NewTopicParser(constants.DefaultNamespace)

func isKnownAction(action string) bool {
	switch action {
	case constants.ActionReadings, constants.ActionBatch, constants.ActionStatus, constants.ActionCommandResponse:
		return true
	}
	return false
}
