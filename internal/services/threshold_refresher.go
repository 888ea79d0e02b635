package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ThresholdSource reloads every sensor's thresholds.
type ThresholdSource interface {
	RefreshAll(ctx context.Context) (int, error)
}

// ThresholdRefresher reloads the threshold cache once at start and then on a fixed interval.
type ThresholdRefresher struct {
	Interval time.Duration
	Source   ThresholdSource
	Logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewThresholdRefresher(interval time.Duration, source ThresholdSource, logger zerolog.Logger) *ThresholdRefresher {
	return &ThresholdRefresher{
		Interval: interval,
		Source:   source,
		Logger:   logger.With().Str("component", "threshold-refresher").Logger(),
	}
}

// Start performs the initial load synchronously and launches the refresh loop.
// A failed initial load is logged; lookups fall back to the store on a miss.
func (r *ThresholdRefresher) Start() error {
	if r.ctx != nil {
		r.Logger.Warn().Msg("ThresholdRefresher is already running")
		return errors.New("threshold refresher is already running")
	}
	if r.Interval <= 0 {
		return errors.New("threshold refresh interval must be positive")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.refresh()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runRefreshLoop()
	}()

	r.Logger.Info().Dur("interval", r.Interval).Msg("ThresholdRefresher started successfully")
	return nil
}

// Stop ends the refresh loop.
func (r *ThresholdRefresher) Stop() error {
	if r.ctx == nil {
		r.Logger.Warn().Msg("ThresholdRefresher is not running")
		return errors.New("threshold refresher is not running")
	}

	r.cancel()
	r.wg.Wait()

	r.ctx = nil
	r.cancel = nil

	r.Logger.Info().Msg("ThresholdRefresher stopped successfully")
	return nil
}

func (r *ThresholdRefresher) runRefreshLoop() {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.refresh()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *ThresholdRefresher) refresh() {
	start := time.Now()
	n, err := r.Source.RefreshAll(r.ctx)
	if err != nil {
		r.Logger.Error().Err(err).Msg("Failed to refresh thresholds")
		return
	}
	r.Logger.Info().Int("sensors", n).Dur("took", time.Since(start)).Msg("Thresholds refreshed")
}
