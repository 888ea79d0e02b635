package metrics_collectors

import (
	"context"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/mem"
)

// MemoryMetricCollector reports host virtual memory usage.
type MemoryMetricCollector struct {
	Logger zerolog.Logger
}

func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

func (m *MemoryMetricCollector) Collect(ctx context.Context) *float64 {
	stats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve memory statistics")
		return nil
	}
	return &stats.UsedPercent
}

func (m *MemoryMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorMemory
}

func (m *MemoryMetricCollector) Unit() string {
	return "percentage"
}

func (m *MemoryMetricCollector) Description() string {
	return "Percentage of used host virtual memory."
}
