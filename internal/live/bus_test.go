package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/session"
	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(session.Envelope{
		SessionID: "s1",
		Seq:       7,
		Event:     session.AnswerRejected{ParticipantID: "p1", QuestionIndex: 0},
	})
	require.NoError(t, err)

	assert.Equal(t, "answer_rejected", f.Type)
	assert.Equal(t, uint64(7), f.Seq)
	assert.Equal(t, session.Audience{Kind: session.AudienceParticipant, ParticipantID: "p1"}, f.Audience)
	assert.False(t, f.Droppable)

	tick, err := NewFrame(session.Envelope{SessionID: "s1", Event: session.TimerTick{}})
	require.NoError(t, err)
	assert.True(t, tick.Droppable)

	_, err = NewFrame(session.Envelope{SessionID: "s1"})
	assert.Error(t, err)
}

func TestDispatchRespectsAudience(t *testing.T) {
	hub := ws.NewHub(zerolog.Nop())
	server := hubServer(t, hub)

	host := dial(t, wsURL(server, "/?session_id=s1&member=h&role=host"))
	p1 := dial(t, wsURL(server, "/?session_id=s1&member=p1&role=participant"))
	p2 := dial(t, wsURL(server, "/?session_id=s1&member=p2&role=participant"))
	require.Eventually(t, func() bool { return hub.Count("s1") == 3 }, time.Second, 5*time.Millisecond)

	private := Frame{SessionID: "s1", Seq: 1, Type: "answer_accepted", Audience: session.Audience{Kind: session.AudienceParticipant, ParticipantID: "p1"}, Payload: json.RawMessage(`{}`)}
	require.NoError(t, Dispatch(hub, private))

	hostOnly := Frame{SessionID: "s1", Seq: 2, Type: "participant_joined", Audience: session.Audience{Kind: session.AudienceHost}, Payload: json.RawMessage(`{}`)}
	require.NoError(t, Dispatch(hub, hostOnly))

	all := Frame{SessionID: "s1", Seq: 3, Type: "leaderboard_updated", Audience: session.Audience{Kind: session.AudienceAll}, Payload: json.RawMessage(`{}`)}
	require.NoError(t, Dispatch(hub, all))

	assert.Equal(t, uint64(1), readUntil(t, p1, "answer_accepted").Seq)
	assert.Equal(t, uint64(2), readUntil(t, host, "participant_joined").Seq)

	// p2 sees only the broadcast
	var first ws.Message
	require.NoError(t, p2.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, p2.ReadJSON(&first))
	assert.Equal(t, "leaderboard_updated", first.Type)

	missing := Frame{SessionID: "s1", Type: "answer_accepted", Audience: session.Audience{Kind: session.AudienceParticipant, ParticipantID: "gone"}}
	assert.NoError(t, Dispatch(hub, missing))
}

func TestRelayForwardsBusFrames(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := ws.NewHub(zerolog.Nop())
	server := hubServer(t, hub)
	viewer := dial(t, wsURL(server, "/?session_id=s1&member=p1&role=participant"))
	require.Eventually(t, func() bool { return hub.Count("s1") == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := NewRelay(client, hub, "", zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	require.Eventually(t, func() bool { return mr.PubSubNumPat() > 0 }, time.Second, 5*time.Millisecond)

	bus := NewRedisBus(client, "")
	publisher := NewPublisher(bus, hub, nil, zerolog.Nop())
	require.NoError(t, publisher.Publish(ctx, session.Envelope{
		SessionID: "s1",
		Seq:       4,
		Event:     session.ParticipantDisconnected{ParticipantID: "p9"},
	}))

	msg := readUntil(t, viewer, "participant_disconnected")
	assert.Equal(t, uint64(4), msg.Seq)
	assert.JSONEq(t, `{"participant_id":"p9"}`, string(msg.Payload))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPublisherResyncClosesSessionConnections(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	hub := ws.NewHub(zerolog.Nop())
	server := hubServer(t, hub)
	viewer := dial(t, wsURL(server, "/?session_id=s1&member=p1&role=participant"))
	dial(t, wsURL(server, "/?session_id=s2&member=p2&role=participant"))
	require.Eventually(t, func() bool { return hub.Count("s1") == 1 && hub.Count("s2") == 1 }, time.Second, 5*time.Millisecond)

	publisher := NewPublisher(NewRedisBus(client, ""), hub, nil, zerolog.Nop())
	mr.Close()
	err := publisher.Publish(context.Background(), session.Envelope{
		SessionID: "s1",
		Event:     session.SessionStateChanged{To: session.StatusEnded},
	})
	require.Error(t, err)

	publisher.Resync("s1")
	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg ws.Message
		if err := viewer.ReadJSON(&msg); err != nil {
			break
		}
	}
	require.Eventually(t, func() bool { return hub.Count("s1") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Count("s2"))
}
