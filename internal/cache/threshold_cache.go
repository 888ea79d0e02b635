package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/moondesk/ingest-worker/internal/storage"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

type boundsMap = cmap.ConcurrentMap[string, models.ThresholdBounds]

// ThresholdCache maps sensor ids to threshold bounds.
//
// Lookups read the current snapshot; a miss falls through to the sensor store.
// RefreshAll builds a fresh snapshot and swaps it in, so readers never see a
// partially refreshed map and are never blocked by a refresh.
type ThresholdCache struct {
	store   storage.SensorStore
	entries atomic.Pointer[boundsMap]
	logger  zerolog.Logger
}

// NewThresholdCache returns an empty cache backed by store.
func NewThresholdCache(store storage.SensorStore, logger zerolog.Logger) *ThresholdCache {
	c := &ThresholdCache{
		store:  store,
		logger: logger.With().Str("component", "threshold_cache").Logger(),
	}
	c.entries.Store(newBoundsMap())
	return c
}

// Get returns the bounds for sensorID. On a miss it fetches the sensor scoped to
// orgID and caches the result. ok is false when the sensor does not exist; nothing
// is cached in that case.
func (c *ThresholdCache) Get(ctx context.Context, sensorID int64, orgID string) (models.ThresholdBounds, bool, error) {
	key := cacheKey(sensorID)
	entries := c.entries.Load()
	if bounds, ok := entries.Get(key); ok {
		return bounds, true, nil
	}

	sensor, err := c.store.GetByID(ctx, sensorID, orgID)
	if errors.Is(err, storage.ErrSensorNotFound) {
		c.logger.Debug().Int64("sensor_id", sensorID).Str("organization_id", orgID).Msg("Sensor not found, no thresholds")
		return models.ThresholdBounds{}, false, nil
	}
	if err != nil {
		return models.ThresholdBounds{}, false, fmt.Errorf("fetch thresholds for sensor %d: %w", sensorID, err)
	}

	bounds := sensor.Bounds()
	c.entries.Load().Set(key, bounds)
	return bounds, true, nil
}

// RefreshAll replaces the cache with every sensor in the system and returns how many were loaded.
// On error the previous snapshot is kept.
func (c *ThresholdCache) RefreshAll(ctx context.Context) (int, error) {
	sensors, err := c.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh thresholds: %w", err)
	}

	next := newBoundsMap()
	for _, sensor := range sensors {
		next.Set(cacheKey(sensor.ID), sensor.Bounds())
	}
	c.entries.Store(next)

	c.logger.Info().Int("sensors", len(sensors)).Msg("Threshold cache refreshed")
	return len(sensors), nil
}

// Clear drops every entry.
func (c *ThresholdCache) Clear() {
	c.entries.Store(newBoundsMap())
}

// Len reports the number of cached sensors.
func (c *ThresholdCache) Len() int {
	return c.entries.Load().Count()
}

func newBoundsMap() *boundsMap {
	m := cmap.New[models.ThresholdBounds]()
	return &m
}

func cacheKey(sensorID int64) string {
	return strconv.FormatInt(sensorID, 10)
}
