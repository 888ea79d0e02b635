package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebsocketBroadcaster pushes events to the API over a single websocket.
type WebsocketBroadcaster struct {
	opts   Options
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu   sync.Mutex // guards conn and serialises writes
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWebsocketBroadcaster(opts Options, logger zerolog.Logger) *WebsocketBroadcaster {
	return &WebsocketBroadcaster{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.WriteTimeout},
		logger: logger.With().Str("component", "broadcast").Str("driver", "websocket").Logger(),
	}
}

// Connect dials with bounded retries. Whether or not that succeeds, a background
// loop keeps the connection alive until Close; a failed connect only means events
// are dropped until the API becomes reachable.
func (w *WebsocketBroadcaster) Connect(ctx context.Context) error {
	if w.ctx != nil {
		return fmt.Errorf("websocket broadcaster is already running")
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	w.logger.Info().Str("url", w.opts.URL).Msg("Connecting to API for broadcasting")
	err := retry(ctx, w.opts.ConnectRetries, w.opts.RetryDelay, w.dial)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.supervise()
	}()

	if err != nil {
		return fmt.Errorf("connect to %s: %w", w.opts.URL, err)
	}
	return nil
}

func (w *WebsocketBroadcaster) dial() error {
	header := http.Header{}
	if w.opts.Token != "" {
		header.Set("Authorization", "Bearer "+w.opts.Token)
	}
	header.Set("X-Worker", "true")

	conn, _, err := w.dialer.DialContext(w.ctx, w.opts.URL, header)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Dial failed")
		return err
	}
	if err := w.install(conn); err != nil {
		return err
	}
	w.logger.Info().Msg("Connected to API for broadcasting")
	return nil
}

// install makes conn the active connection unless Close has already begun,
// in which case conn is closed so the supervisor never blocks reading it.
func (w *WebsocketBroadcaster) install(conn *websocket.Conn) error {
	w.mu.Lock()
	if err := w.ctx.Err(); err != nil {
		w.mu.Unlock()
		conn.Close()
		return err
	}
	w.conn = conn
	w.mu.Unlock()
	return nil
}

// supervise reads from the live connection to notice closes, then redials.
func (w *WebsocketBroadcaster) supervise() {
	for {
		if conn := w.current(); conn != nil {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if w.ctx.Err() == nil {
						w.logger.Warn().Err(err).Msg("Disconnected from API")
					}
					break
				}
			}
			w.drop(conn)
		}

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.opts.RetryDelay):
			_ = w.dial()
		}
	}
}

func (w *WebsocketBroadcaster) current() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

// drop forgets conn if it is still the active connection.
func (w *WebsocketBroadcaster) drop(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	conn.Close()
}

func (w *WebsocketBroadcaster) IsConnected() bool {
	return w.current() != nil
}

// Broadcast writes one event. When disconnected the event is dropped.
func (w *WebsocketBroadcaster) Broadcast(event string, payload any) {
	data, err := encode(event, payload, time.Now())
	if err != nil {
		w.logger.Error().Err(err).Str("event", event).Msg("Failed to serialize broadcast")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		w.logger.Debug().Str("event", event).Msg("Cannot broadcast, not connected to API")
		return
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		w.logger.Error().Err(err).Str("event", event).Msg("Failed to broadcast to API")
		// Closing unblocks the supervisor's read, which then redials.
		w.conn.Close()
		return
	}
	w.logger.Debug().Str("event", event).Msg("Broadcasted event to API")
}

// Close stops reconnecting and closes the connection gracefully.
func (w *WebsocketBroadcaster) Close() error {
	if w.ctx == nil {
		return nil
	}
	w.cancel()

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "worker shutdown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.ctx = nil
	w.logger.Info().Msg("Disconnected from API broadcaster")
	return nil
}
