package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moondesk/ingest-worker/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiServer struct {
	*httptest.Server
	messages    chan Envelope
	connections chan *websocket.Conn
	headers     chan http.Header
}

func newAPIServer(t *testing.T) *apiServer {
	s := &apiServer{
		messages:    make(chan Envelope, 16),
		connections: make(chan *websocket.Conn, 4),
		headers:     make(chan http.Header, 4),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.headers <- r.Header.Clone()
		s.connections <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				s.messages <- env
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWebsocketBroadcaster_SendsEvents(t *testing.T) {
	// Setup
	server := newAPIServer(t)
	opts := testOptions()
	opts.URL = server.wsURL()
	opts.Token = "svc-token"
	b := NewWebsocketBroadcaster(opts, zerolog.Nop())

	// Execute
	require.NoError(t, b.Connect(context.Background()))
	defer b.Close()
	b.Broadcast("alert", models.AlertEvent{ID: 7, Severity: models.SeverityCritical})

	// Assert
	header := <-server.headers
	assert.Equal(t, "Bearer svc-token", header.Get("Authorization"))
	assert.Equal(t, "true", header.Get("X-Worker"))

	select {
	case env := <-server.messages:
		assert.Equal(t, "worker:alert", env.Event)
		data := env.Data.(map[string]any)
		assert.Equal(t, float64(7), data["id"])
		assert.Equal(t, "critical", data["severity"])
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestWebsocketBroadcaster_UnreachableIsBestEffort(t *testing.T) {
	opts := testOptions()
	opts.URL = "ws://127.0.0.1:1/ws"
	b := NewWebsocketBroadcaster(opts, zerolog.Nop())

	err := b.Connect(context.Background())

	assert.Error(t, err)
	assert.False(t, b.IsConnected())
	assert.NotPanics(t, func() { b.Broadcast("reading", models.ReadingEvent{}) })
	assert.NoError(t, b.Close())
}

func TestWebsocketBroadcaster_ReconnectsAfterServerClose(t *testing.T) {
	server := newAPIServer(t)
	opts := testOptions()
	opts.URL = server.wsURL()
	b := NewWebsocketBroadcaster(opts, zerolog.Nop())
	require.NoError(t, b.Connect(context.Background()))
	defer b.Close()

	first := <-server.connections
	first.Close()

	select {
	case <-server.connections:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not reconnect")
	}
	assert.Eventually(t, b.IsConnected, time.Second, 10*time.Millisecond)
}

func TestWebsocketBroadcaster_ConnectTwice(t *testing.T) {
	server := newAPIServer(t)
	opts := testOptions()
	opts.URL = server.wsURL()
	b := NewWebsocketBroadcaster(opts, zerolog.Nop())
	require.NoError(t, b.Connect(context.Background()))
	defer b.Close()

	assert.Error(t, b.Connect(context.Background()))
}

func TestWebsocketBroadcaster_InstallAfterCloseDiscardsConn(t *testing.T) {
	// Setup
	server := newAPIServer(t)
	b := NewWebsocketBroadcaster(testOptions(), zerolog.Nop())
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.cancel()

	conn, _, err := websocket.DefaultDialer.Dial(server.wsURL(), nil)
	require.NoError(t, err)

	// Execute
	err = b.install(conn)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, b.IsConnected())
	assert.Error(t, conn.WriteMessage(websocket.TextMessage, []byte("late")), "discarded conn must be closed")
}

func TestWebsocketBroadcaster_InstallWhileRunning(t *testing.T) {
	server := newAPIServer(t)
	b := NewWebsocketBroadcaster(testOptions(), zerolog.Nop())
	b.ctx, b.cancel = context.WithCancel(context.Background())
	defer b.cancel()

	conn, _, err := websocket.DefaultDialer.Dial(server.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, b.install(conn))
	assert.True(t, b.IsConnected())
}
