package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := ws.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one of type want arrives, skipping the rest.
func readUntil(t *testing.T, conn *websocket.Conn, want string) ws.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", want)
		if msg.Type == want {
			return msg
		}
	}
}

func decode[T any](t *testing.T, msg ws.Message) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}

// hubServer registers every dialed connection in hub under the query's
// session_id, member and role.
func hubServer(t *testing.T, hub *ws.Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		conn := ws.NewConnection(raw, q.Get("session_id"), q.Get("member"), q.Get("role"), zerolog.Nop())
		hub.Register(conn)
		go conn.WritePump()
		conn.ReadPump(func(ws.Message) error { return nil })
		hub.Unregister(conn)
	}))
	t.Cleanup(server.Close)
	return server
}
