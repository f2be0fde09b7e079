package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubble-duels/duels-backend/internal/display"
	"github.com/bubble-duels/duels-backend/internal/models"
)

func newTestClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan *Message, 16),
		userID: userID,
		logger: hub.logger,
	}
}

func receiveMessage(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_VoteEventOnlyReachesBattleSubscribers(t *testing.T) {
	hub := NewHub()

	watcher := newTestClient(hub, "watcher")
	lurker := newTestClient(hub, "lurker")
	hub.registerClient(watcher)
	hub.registerClient(lurker)
	hub.subscribeClient(watcher, "battle-1")

	hub.broadcastMessage(&Message{
		Type:     models.EventVote,
		BattleID: "battle-1",
		Payload:  display.BattleSnapshot{BattleID: "battle-1"},
	})

	msg := receiveMessage(t, watcher)
	assert.Equal(t, models.EventVote, msg.Type)
	assert.Equal(t, "battle-1", msg.BattleID)

	// 구독하지 않은 클라이언트는 투표 이벤트를 받지 않음
	assertNoMessage(t, lurker)
}

func TestHub_LifecycleEventsReachLobby(t *testing.T) {
	hub := NewHub()

	lurker := newTestClient(hub, "lurker")
	hub.registerClient(lurker)

	for _, eventType := range []string{models.EventStart, models.EventEnd, models.EventCancel} {
		hub.broadcastMessage(&Message{
			Type:     eventType,
			BattleID: "battle-1",
			Payload:  display.BattleSnapshot{BattleID: "battle-1"},
		})
		msg := receiveMessage(t, lurker)
		assert.Equal(t, eventType, msg.Type)
	}
}

func TestHub_SubscriberGetsEventOnce(t *testing.T) {
	hub := NewHub()

	// 배틀과 로비 양쪽 모두에 해당하는 클라이언트
	watcher := newTestClient(hub, "watcher")
	hub.registerClient(watcher)
	hub.subscribeClient(watcher, "battle-1")

	hub.broadcastMessage(&Message{
		Type:     models.EventStart,
		BattleID: "battle-1",
		Payload:  display.BattleSnapshot{BattleID: "battle-1"},
	})

	receiveMessage(t, watcher)
	assertNoMessage(t, watcher)
}

func TestHub_UnsubscribeStopsVoteEvents(t *testing.T) {
	hub := NewHub()

	watcher := newTestClient(hub, "watcher")
	hub.registerClient(watcher)
	hub.subscribeClient(watcher, "battle-1")
	hub.unsubscribeClient(watcher, "battle-1")

	hub.broadcastMessage(&Message{
		Type:     models.EventVote,
		BattleID: "battle-1",
	})
	assertNoMessage(t, watcher)
}

func TestHub_UnregisterCleansTopics(t *testing.T) {
	hub := NewHub()

	watcher := newTestClient(hub, "watcher")
	hub.registerClient(watcher)
	hub.subscribeClient(watcher, "battle-1")
	hub.unregisterClient(watcher)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.clients)
	assert.Empty(t, hub.topics)
}

func TestHub_RunDeliversBroadcastEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	watcher := newTestClient(hub, "watcher")
	hub.register <- watcher
	hub.subscribe <- subscription{client: watcher, topic: "battle-9"}

	hub.BroadcastBattleEvent(models.EventVote, display.BattleSnapshot{BattleID: "battle-9"})

	msg := receiveMessage(t, watcher)
	require.Equal(t, models.EventVote, msg.Type)

	snapshot, ok := msg.Payload.(display.BattleSnapshot)
	require.True(t, ok)
	assert.Equal(t, "battle-9", snapshot.BattleID)
}
