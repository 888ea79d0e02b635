package models

import "time"

// PipelineStats is a point-in-time snapshot of ingestion counters.
type PipelineStats struct {
	Received         uint64 `json:"received"`
	Dropped          uint64 `json:"dropped"`
	ReadingsStored   uint64 `json:"readingsStored"`
	BatchesStored    uint64 `json:"batchesStored"`
	AlertsCreated    uint64 `json:"alertsCreated"`
	CommandResponses uint64 `json:"commandResponses"`
	Failures         uint64 `json:"failures"`
}

// WorkerStatus is published periodically so operators can see the worker is alive.
type WorkerStatus struct {
	ClientID  string              `json:"clientId"`
	Timestamp time.Time           `json:"timestamp"`
	Status    string              `json:"status"`
	Stats     PipelineStats       `json:"stats"`
	Metrics   map[string]*float64 `json:"metrics,omitempty"`
}

// MetricsConfig toggles the process health collectors.
type MetricsConfig struct {
	MonitorCPU        bool `yaml:"monitor_cpu"`
	MonitorMemory     bool `yaml:"monitor_memory"`
	MonitorGoroutines bool `yaml:"monitor_goroutines"`
	MonitorProcess    bool `yaml:"monitor_process"`
}
