package constants

// Broadcast event kinds emitted by the ingestion engine.
const (
	EventReading       = "reading"
	EventReadingBatch  = "reading-batch"
	EventAlert         = "alert"
	EventCommandStatus = "command-status"
)

// EventPrefix namespaces worker events on the fan-out service.
const EventPrefix = "worker:"

// Worker status values
const (
	StatusAlive    = "alive"
	StatusStopping = "stopping"
)
