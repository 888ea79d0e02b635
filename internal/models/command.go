package models

import "time"

// Command is published to a sensor's command topic.
type Command struct {
	CommandID  int64             `json:"commandId"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
	IssuedAt   time.Time         `json:"issuedAt"`
}

// CommandResponse is a device's report on a previously issued command.
type CommandResponse struct {
	CommandID int64         `json:"commandId"`
	Status    CommandStatus `json:"status"`
	Result    *string       `json:"result,omitempty"`
	Error     *string       `json:"error,omitempty"`
}
