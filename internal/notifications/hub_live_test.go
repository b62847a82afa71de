package notifications

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveHub runs a Fiber app whose /ws route registers connections with hub
// and drives them with the real pumps. It returns the ws:// URL.
func serveHub(t *testing.T, hub *Hub) (string, <-chan struct{}) {
	t.Helper()
	registered := make(chan struct{}, 16)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		client, err := hub.Register(1, conn)
		if err != nil {
			_ = conn.Close()
			return
		}
		registered <- struct{}{}
		go client.WritePump()
		client.ReadPump()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws", registered
}

func TestHub_ShutdownWithLivePumps(t *testing.T) {
	hub := NewHub()
	url, registered := serveHub(t, hub)

	const clients = 4
	conns := make([]*gorillaws.Conn, 0, clients)
	for i := 0; i < clients; i++ {
		conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		t.Cleanup(func() { _ = conn.Close() })
		conns = append(conns, conn)

		select {
		case <-registered:
		case <-time.After(5 * time.Second):
			t.Fatal("connection was not registered")
		}
	}
	require.Equal(t, clients, hub.ConnectionCount())

	hub.BroadcastAll(`{"type":"post_created","payload":{}}`)
	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), "post_created")
	}

	// Broadcasts racing the shutdown must neither panic nor write to a
	// connection the pump is closing.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.BroadcastAll(`{"type":"post_updated","payload":{}}`)
			}
		}()
	}
	require.NoError(t, hub.Shutdown(context.Background()))
	wg.Wait()

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var closeErr *gorillaws.CloseError
		for {
			_, _, err := conn.ReadMessage()
			if err == nil {
				continue
			}
			require.ErrorAs(t, err, &closeErr)
			break
		}
		assert.Equal(t, gorillaws.CloseGoingAway, closeErr.Code)
		assert.Equal(t, "Server shutting down", closeErr.Text)
	}

	assert.Equal(t, 0, hub.ConnectionCount())
	_, err := hub.Register(1, nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestClient_TrySend_RacesClose(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.TrySend([]byte(`{"type":"x","payload":{}}`))
			}
		}()
	}
	require.NoError(t, hub.Shutdown(context.Background()))
	wg.Wait()

	assert.ErrorIs(t, c.TrySend([]byte("late")), ErrSendClosed)
}
