package models

import "time"

// Reading is one telemetry sample. Readings are written once and never mutated.
type Reading struct {
	SensorID       int64             `json:"sensorId"`
	OrganizationID string            `json:"organizationId"`
	Timestamp      time.Time         `json:"timestamp"`
	Value          float64           `json:"value"`
	Parameter      Parameter         `json:"parameter"`
	Protocol       Protocol          `json:"protocol"`
	Quality        Quality           `json:"quality"`
	Notes          string            `json:"notes,omitempty"`
	Metadata       map[string]string `json:"metadata"`
}
