package ws

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(sessionID, memberID, role string) *Connection {
	return NewConnection(nil, sessionID, memberID, role, zerolog.Nop())
}

func drain(c *Connection) []string {
	var types []string
	for {
		select {
		case msg, ok := <-c.sendCh:
			if !ok {
				return types
			}
			types = append(types, msg.Type)
		default:
			return types
		}
	}
}

func TestHubRoutesByAudience(t *testing.T) {
	h := NewHub(zerolog.Nop())
	host := newTestConn("s1", "host", RoleHost)
	alice := newTestConn("s1", "alice", RoleParticipant)
	other := newTestConn("s2", "bob", RoleParticipant)
	h.Register(host)
	h.Register(alice)
	h.Register(other)

	h.Broadcast("s1", Message{Type: TypeSessionStateChanged}, false)
	h.SendToRole("s1", RoleHost, Message{Type: TypeError}, false)
	require.NoError(t, h.SendToMember("s1", "alice", Message{Type: TypeAnswerAccepted}, false))
	assert.ErrorIs(t, h.SendToMember("s1", "nobody", Message{Type: TypeAnswerAccepted}, false), ErrConnectionNotFound)

	assert.Equal(t, []string{TypeSessionStateChanged, TypeError}, drain(host))
	assert.Equal(t, []string{TypeSessionStateChanged, TypeAnswerAccepted}, drain(alice))
	assert.Empty(t, drain(other))
	assert.Equal(t, 2, h.Count("s1"))
}

func TestHubReplacesMemberConnection(t *testing.T) {
	h := NewHub(zerolog.Nop())
	first := newTestConn("s1", "alice", RoleParticipant)
	second := newTestConn("s1", "alice", RoleParticipant)
	h.Register(first)
	h.Register(second)

	assert.ErrorIs(t, first.Send(Message{Type: TypePong}), ErrConnectionClosed)
	assert.False(t, h.Unregister(first), "stale connection must not evict the new one")
	assert.Equal(t, 1, h.Count("s1"))
	assert.True(t, h.Unregister(second))
	assert.Equal(t, 0, h.Count("s1"))
}

func TestHubBackpressure(t *testing.T) {
	h := NewHub(zerolog.Nop())
	var dropped []string
	h.OnDrop = func(msgType string) { dropped = append(dropped, msgType) }

	slow := newTestConn("s1", "slow", RoleParticipant)
	h.Register(slow)
	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, slow.Send(Message{Type: TypeTimerTick}))
	}

	h.Broadcast("s1", Message{Type: TypeTimerTick}, true)
	assert.Equal(t, []string{TypeTimerTick}, dropped)
	assert.ErrorIs(t, slow.Send(Message{Type: TypePong}), ErrSendQueueFull, "still open after a dropped tick")
}

func TestHubClosesSlowConnectionOnCriticalMessage(t *testing.T) {
	h := NewHub(zerolog.Nop())
	slow := newTestConn("s1", "slow", RoleParticipant)
	h.Register(slow)
	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, slow.Send(Message{Type: TypeTimerTick}))
	}

	h.Broadcast("s1", Message{Type: TypeSessionStateChanged}, false)
	assert.ErrorIs(t, slow.Send(Message{Type: TypePong}), ErrConnectionClosed)
}

func TestHubRebind(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := newTestConn("s1", "temp", RoleParticipant)
	h.Register(conn)
	h.Rebind(conn, "alice")

	assert.ErrorIs(t, h.SendToMember("s1", "temp", Message{Type: TypePong}, false), ErrConnectionNotFound)
	require.NoError(t, h.SendToMember("s1", "alice", Message{Type: TypePong}, false))
	assert.Equal(t, 1, h.Count("s1"))
	assert.True(t, h.Connected("s1", "alice"))
	assert.False(t, h.Connected("s1", "temp"))
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeError, ErrorPayload{Code: "x", Message: "y"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"x","message":"y"}`, string(msg.Payload))

	empty, err := NewMessage(TypePong, nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Payload)
}
