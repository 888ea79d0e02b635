package models

import "time"

// AlertInput carries everything the alert store needs to create an alert.
type AlertInput struct {
	SensorID       int64
	OrganizationID string
	Severity       Severity
	Message        string
	Value          float64
	ThresholdValue *float64
	Protocol       Protocol
	Metadata       map[string]string
}

// Alert is a persisted threshold violation. The worker only ever creates unacknowledged alerts.
type Alert struct {
	ID             int64             `json:"id"`
	SensorID       int64             `json:"sensorId"`
	OrganizationID string            `json:"organizationId"`
	Timestamp      time.Time         `json:"timestamp"`
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	Value          float64           `json:"value"`
	ThresholdValue *float64          `json:"thresholdValue"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedAt *time.Time        `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy *string           `json:"acknowledgedBy,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Protocol       Protocol          `json:"protocol"`
	Metadata       map[string]string `json:"metadata"`
}
