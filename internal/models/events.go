package models

import "time"

// ReadingEvent is the broadcast form of a persisted reading.
// AssetID is not resolved by the worker and is always zero.
type ReadingEvent struct {
	SensorID       int64     `json:"sensorId"`
	AssetID        int64     `json:"assetId"`
	OrganizationID string    `json:"organizationId"`
	Timestamp      time.Time `json:"timestamp"`
	Value          float64   `json:"value"`
	Parameter      Parameter `json:"parameter"`
	Quality        Quality   `json:"quality"`
}

// NewReadingEvent builds the broadcast payload for r.
func NewReadingEvent(r Reading) ReadingEvent {
	return ReadingEvent{
		SensorID:       r.SensorID,
		OrganizationID: r.OrganizationID,
		Timestamp:      r.Timestamp,
		Value:          r.Value,
		Parameter:      r.Parameter,
		Quality:        r.Quality,
	}
}

// AlertEvent is the broadcast form of a created alert.
type AlertEvent struct {
	ID             int64     `json:"id"`
	SensorID       int64     `json:"sensorId"`
	AssetID        int64     `json:"assetId"`
	OrganizationID string    `json:"organizationId"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Value          float64   `json:"value"`
	Threshold      *float64  `json:"threshold"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewAlertEvent builds the broadcast payload for a.
func NewAlertEvent(a Alert) AlertEvent {
	return AlertEvent{
		ID:             a.ID,
		SensorID:       a.SensorID,
		OrganizationID: a.OrganizationID,
		Severity:       a.Severity,
		Message:        a.Message,
		Value:          a.Value,
		Threshold:      a.ThresholdValue,
		CreatedAt:      a.Timestamp,
	}
}

// CommandStatusEvent reports a command outcome received from a device.
type CommandStatusEvent struct {
	ID             int64         `json:"id"`
	SensorID       int64         `json:"sensorId"`
	OrganizationID string        `json:"organizationId"`
	Status         CommandStatus `json:"status"`
	Result         *string       `json:"result,omitempty"`
	Error          *string       `json:"error,omitempty"`
	CompletedAt    time.Time     `json:"completedAt"`
}
