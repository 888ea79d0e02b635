package metrics_collectors

import (
	"context"

	"github.com/moondesk/ingest-worker/internal/models"
)

// MetricCollector samples one health value of the worker host or process.
type MetricCollector interface {
	Name() string                                // Key under which the value is reported
	Collect(ctx context.Context) *float64        // Current value, nil when unavailable
	IsEnabled(config *models.MetricsConfig) bool // Whether the config turns this collector on
	Unit() string                                // Unit of the value, e.g. "percentage"
	Description() string                         // Human readable summary
}
