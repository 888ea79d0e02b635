package broadcast

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroadcaster publishes events on redis pub/sub channels so any number of
// API replicas can fan them out. It also keeps the latest reading per sensor.
type RedisBroadcaster struct {
	client    *redis.Client
	opts      Options
	logger    zerolog.Logger
	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBroadcaster parses opts.URL as a redis URL, or uses it as host:port.
func NewRedisBroadcaster(opts Options, logger zerolog.Logger) (*RedisBroadcaster, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis broadcaster requires a url")
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		redisOpts = &redis.Options{Addr: opts.URL}
	}
	return newRedisBroadcaster(redis.NewClient(redisOpts), opts, logger), nil
}

func newRedisBroadcaster(client *redis.Client, opts Options, logger zerolog.Logger) *RedisBroadcaster {
	if opts.ChannelPrefix == "" {
		opts.ChannelPrefix = constants.DefaultRedisChannelPrefix
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBroadcaster{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "broadcast").Str("driver", "redis").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect pings redis with bounded retries. On failure it keeps pinging in the
// background and starts publishing once redis answers.
func (r *RedisBroadcaster) Connect(ctx context.Context) error {
	err := retry(ctx, r.opts.ConnectRetries, r.opts.RetryDelay, r.ping)
	if err == nil {
		r.markConnected()
		return nil
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(r.opts.RetryDelay):
				if r.ping() == nil {
					r.markConnected()
					return
				}
			}
		}
	}()
	return fmt.Errorf("connect to redis: %w", err)
}

func (r *RedisBroadcaster) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.WriteTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisBroadcaster) markConnected() {
	r.connected.Store(true)
	r.logger.Info().Msg("Connected to redis for broadcasting")
}

func (r *RedisBroadcaster) IsConnected() bool {
	return r.connected.Load()
}

// Channel returns the pub/sub channel an event is published on.
func (r *RedisBroadcaster) Channel(event string) string {
	return r.opts.ChannelPrefix + EventName(event)
}

// Broadcast publishes the event; reading events also refresh the sensor's latest value.
func (r *RedisBroadcaster) Broadcast(event string, payload any) {
	if !r.connected.Load() {
		r.logger.Debug().Str("event", event).Msg("Cannot broadcast, not connected to redis")
		return
	}

	data, err := encode(event, payload, time.Now())
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("Failed to serialize broadcast")
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.opts.WriteTimeout)
	defer cancel()

	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, r.Channel(event), data)
		if reading, ok := payload.(models.ReadingEvent); ok {
			pipe.Set(ctx, r.LastReadingKey(reading.SensorID), strconv.FormatFloat(reading.Value, 'f', -1, 64),
				constants.DefaultLastReadingTTL)
		}
		return nil
	})
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("Failed to broadcast to redis")
		return
	}
	r.logger.Debug().Str("event", event).Msg("Broadcasted event to redis")
}

// LastReadingKey is the key holding a sensor's most recent value.
func (r *RedisBroadcaster) LastReadingKey(sensorID int64) string {
	return fmt.Sprintf("%ssensor:last:%d", r.opts.ChannelPrefix, sensorID)
}

func (r *RedisBroadcaster) Close() error {
	r.cancel()
	r.wg.Wait()
	r.connected.Store(false)
	return r.client.Close()
}
