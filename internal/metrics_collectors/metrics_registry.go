package metrics_collectors

import (
	"context"
	"sort"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/rs/zerolog"
)

// MetricsRegistry holds the collectors reported with each worker status.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
}

// NewDefaultRegistry registers the cpu, memory, goroutine and process collectors.
func NewDefaultRegistry(logger zerolog.Logger) *MetricsRegistry {
	r := NewMetricsRegistry()
	r.Register(&CPUMetricCollector{Logger: logger})
	r.Register(&MemoryMetricCollector{Logger: logger})
	r.Register(&GoroutineMetricCollector{Logger: logger})
	r.Register(NewProcessMetricCollector(logger))
	return r
}

// Register adds a collector, replacing one with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// CollectAll samples every enabled collector. Unavailable values are omitted.
func (r *MetricsRegistry) CollectAll(ctx context.Context, config *models.MetricsConfig) map[string]*float64 {
	names := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]*float64, len(names))
	for _, name := range names {
		collector := r.collectors[name]
		if !collector.IsEnabled(config) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if v := collector.Collect(ctx); v != nil {
			values[name] = v
		}
	}
	return values
}
