package metrics_collectors

import (
	"context"
	"os"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// ProcessMetricCollector reports the resident memory of the worker process.
type ProcessMetricCollector struct {
	Logger zerolog.Logger
	pid    int32
}

func NewProcessMetricCollector(logger zerolog.Logger) *ProcessMetricCollector {
	return &ProcessMetricCollector{Logger: logger, pid: int32(os.Getpid())}
}

func (p *ProcessMetricCollector) Name() string {
	return "rss"
}

func (p *ProcessMetricCollector) Collect(ctx context.Context) *float64 {
	proc, err := process.NewProcessWithContext(ctx, p.pid)
	if err != nil {
		p.Logger.Error().Err(err).Int32("pid", p.pid).Msg("Failed to open worker process")
		return nil
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		p.Logger.Warn().Err(err).Int32("pid", p.pid).Msg("Failed to get memory information")
		return nil
	}
	rss := float64(info.RSS)
	return &rss
}

func (p *ProcessMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorProcess
}

func (p *ProcessMetricCollector) Unit() string {
	return "bytes"
}

func (p *ProcessMetricCollector) Description() string {
	return "Resident set size of the worker process."
}
