package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moondesk/ingest-worker/internal/constants"
	"github.com/rs/zerolog"
)

// Broadcaster forwards engine events to the real-time fan-out service.
// Broadcast never fails from the caller's point of view.
type Broadcaster interface {
	Connect(ctx context.Context) error
	Broadcast(event string, payload any)
	IsConnected() bool
	Close() error
}

// Envelope is the wire form of every broadcast.
type Envelope struct {
	Event  string    `json:"event"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sentAt"`
}

// Options configures every driver.
type Options struct {
	Driver         string
	URL            string
	Token          string
	ChannelPrefix  string
	ConnectRetries int
	RetryDelay     time.Duration
	WriteTimeout   time.Duration
}

// New returns the broadcaster selected by opts.Driver.
func New(opts Options, logger zerolog.Logger) (Broadcaster, error) {
	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = constants.DefaultBroadcastAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultBroadcastDelay
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = constants.DefaultBroadcastWriteWait
	}

	switch opts.Driver {
	case "websocket", "":
		return NewWebsocketBroadcaster(opts, logger), nil
	case "redis":
		return NewRedisBroadcaster(opts, logger)
	case "none":
		return NewNopBroadcaster(logger), nil
	}
	return nil, fmt.Errorf("unknown broadcast driver %q", opts.Driver)
}

// EventName prefixes event with the worker namespace.
func EventName(event string) string {
	return constants.EventPrefix + event
}

func encode(event string, payload any, now time.Time) ([]byte, error) {
	return json.Marshal(Envelope{Event: EventName(event), Data: payload, SentAt: now})
}

// retry calls fn up to attempts times, sleeping delay between failures.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
