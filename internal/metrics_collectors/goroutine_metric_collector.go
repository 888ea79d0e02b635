package metrics_collectors

import (
	"context"
	"runtime"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/rs/zerolog"
)

// GoroutineMetricCollector reports the worker's goroutine count. A steadily
// growing value points at handlers stuck on a store or broadcast call.
type GoroutineMetricCollector struct {
	Logger zerolog.Logger
}

func (g *GoroutineMetricCollector) Name() string {
	return "goroutines"
}

func (g *GoroutineMetricCollector) Collect(ctx context.Context) *float64 {
	n := float64(runtime.NumGoroutine())
	return &n
}

func (g *GoroutineMetricCollector) IsEnabled(config *models.MetricsConfig) bool {
	return config.MonitorGoroutines
}

func (g *GoroutineMetricCollector) Unit() string {
	return "count"
}

func (g *GoroutineMetricCollector) Description() string {
	return "Number of live goroutines in the worker."
}
