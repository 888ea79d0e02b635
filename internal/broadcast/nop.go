package broadcast

import (
	"context"

	"github.com/rs/zerolog"
)

// NopBroadcaster drops every event.
type NopBroadcaster struct {
	logger zerolog.Logger
}

func NewNopBroadcaster(logger zerolog.Logger) *NopBroadcaster {
	return &NopBroadcaster{logger: logger.With().Str("component", "broadcast").Logger()}
}

func (n *NopBroadcaster) Connect(context.Context) error { return nil }

func (n *NopBroadcaster) Broadcast(event string, _ any) {
	n.logger.Debug().Str("event", event).Msg("Broadcast disabled, dropping event")
}

func (n *NopBroadcaster) IsConnected() bool { return false }

func (n *NopBroadcaster) Close() error { return nil }
