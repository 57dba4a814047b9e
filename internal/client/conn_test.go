package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaysync/internal/store"
)

// Exercises the real handshake path: dial, register_browser, inbound event
// flow, and the reset-plus-reconnect cycle after the server drops the socket.
func TestLiveRelayHandshakeAndReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	registers := make(chan string, 4)
	serverConns := make(chan *websocket.Conn, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		registers <- string(msg)
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_connected","repo_path":"/work/a","repo_name":"a"}`))
		serverConns <- c
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	e := New(Options{RelayURL: url, ReconnectDelay: 25 * time.Millisecond})
	defer e.Close()

	e.Connect()

	select {
	case reg := <-registers:
		assert.JSONEq(t, `{"type":"register_browser"}`, reg)
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received register_browser")
	}

	require.Eventually(t, func() bool {
		s := e.Store().State()
		return s.Conn == store.ConnOpen && len(s.Repos) == 1
	}, 2*time.Second, 10*time.Millisecond, "engine never reached open with the repo registered")

	// The server drops the socket. The engine must reset and dial again,
	// re-registering on the fresh connection without any caller involvement.
	first := <-serverConns
	first.Close()

	select {
	case reg := <-registers:
		assert.JSONEq(t, `{"type":"register_browser"}`, reg)
	case <-time.After(2 * time.Second):
		t.Fatal("engine never re-registered after the drop")
	}

	require.Eventually(t, func() bool {
		s := e.Store().State()
		return s.Conn == store.ConnOpen && len(s.Repos) == 1
	}, 2*time.Second, 10*time.Millisecond, "engine never recovered after the drop")
}

func TestConnectIdempotentWhileDialing(t *testing.T) {
	e := newTestEngine() // dialing held true
	e.Connect()
	e.Connect()
	// Neither call may have started a dial or touched the state machine.
	assert.Equal(t, store.ConnIdle, e.Store().State().Conn)
}

func TestCloseIsTerminal(t *testing.T) {
	e := newTestEngine()
	e.Close()
	e.dialing = false
	e.Connect()
	assert.Equal(t, store.ConnClosed, e.Store().State().Conn)
}
