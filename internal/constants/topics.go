package constants

// Topic layout: <namespace>/<organizationId>/sensors/<sensorId>/<action>
const (
	DefaultNamespace = "moondesk"
	SensorsSegment   = "sensors"
	TopicSegments    = 5

	// WildcardAll matches every organization under the namespace.
	WildcardAll = "+"
)

// Inbound actions published by devices.
const (
	ActionReadings        = "readings"
	ActionBatch           = "batch"
	ActionStatus          = "status"
	ActionCommandResponse = "command-response"
)

// Outbound command suffix.
const ActionCommands = "commands"

// Worker status topics live outside the sensor tree so the worker never consumes its own reports.
const WorkersSegment = "_workers"

// MQTT quality of service levels
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)
