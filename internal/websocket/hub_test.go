package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
)

func newTestClient(hub *Hub, id string, urlID, userID int64) *Client {
	return &Client{
		ID:        id,
		URLID:     urlID,
		UserID:    userID,
		IPAddress: "10.0.0.1",
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	go hub.Run()
	t.Cleanup(func() {
		hub.Shutdown()
		hub.Wait()
	})

	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()

	select {
	case raw := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubRegisterClient(t *testing.T) {
	hub := startHub(t)

	client := newTestClient(hub, "c1", 5, 100)
	hub.Register <- client

	msg := receive(t, client)
	assert.Equal(t, TypeSubscribed, msg.Type)
	assert.Equal(t, int64(5), msg.URLID)

	var payload SubscribedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, 1, payload.Watchers)

	assert.Equal(t, 1, hub.GetClientCount(5))
	assert.True(t, hub.IsWatched(5))
	assert.False(t, hub.IsWatched(6))
}

func TestHubUnregisterClient(t *testing.T) {
	hub := startHub(t)

	client := newTestClient(hub, "c1", 5, 100)
	hub.Register <- client
	receive(t, client)

	hub.Unregister <- client

	require.Eventually(t, func() bool { return hub.GetFeedCount() == 0 }, time.Second, 10*time.Millisecond)
	assert.True(t, client.IsClosed())

	// a second unregister is a no-op
	hub.Unregister <- client
}

func TestHubPublishClick_OnlyReachesWatchers(t *testing.T) {
	hub := startHub(t)

	a := newTestClient(hub, "a", 1, 100)
	b := newTestClient(hub, "b", 1, 101)
	other := newTestClient(hub, "c", 2, 102)

	for _, c := range []*Client{a, b, other} {
		hub.Register <- c
		receive(t, c)
	}

	hub.PublishClick(clicks.Message{
		URLID:     1,
		ShortCode: "000a",
		Timestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Referrer:  "https://news.example",
		Location:  &clicks.Location{Country: "NL", City: "Utrecht"},
	})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeClick, msg.Type)
		assert.Equal(t, uint64(1), msg.Sequence)

		var payload ClickPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "000a", payload.ShortCode)
		assert.Equal(t, "NL", payload.Country)
	}

	select {
	case <-other.send:
		t.Fatal("client of another url received the click")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSequenceIncreasesPerFeed(t *testing.T) {
	hub := startHub(t)

	c := newTestClient(hub, "a", 1, 100)
	hub.Register <- c
	receive(t, c)

	for range 3 {
		hub.PublishClick(clicks.Message{URLID: 1, ShortCode: "x"})
	}

	for want := uint64(1); want <= 3; want++ {
		assert.Equal(t, want, receive(t, c).Sequence)
	}
}

func TestHubHandleClick(t *testing.T) {
	hub := startHub(t)

	c := newTestClient(hub, "a", 9, 100)
	hub.Register <- c
	receive(t, c)

	raw, err := json.Marshal(clicks.Message{URLID: 9, ShortCode: "0009"})
	require.NoError(t, err)

	require.NoError(t, hub.HandleClick(context.Background(), bus.Message{Value: raw}))
	assert.Equal(t, TypeClick, receive(t, c).Type)

	err = hub.HandleClick(context.Background(), bus.Message{Value: []byte("nope")})
	assert.ErrorIs(t, err, bus.ErrMalformed)
}

func TestHubCanAcceptConnection(t *testing.T) {
	hub := startHub(t)

	for i := range maxConnectionsPerUser {
		c := newTestClient(hub, GenerateClientID(), int64(i+1), 100)
		hub.Register <- c
		receive(t, c)
	}

	ok, reason := hub.CanAcceptConnection(100, "10.0.0.2")
	assert.False(t, ok)
	assert.Contains(t, reason, "per user")

	ok, _ = hub.CanAcceptConnection(200, "10.0.0.2")
	assert.True(t, ok)
}

func TestHubSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)

	c := newTestClient(hub, "slow", 1, 100)
	c.send = make(chan []byte, 1)
	hub.Register <- c

	// the subscribed message fills the buffer
	require.Eventually(t, func() bool {
		hub.PublishClick(clicks.Message{URLID: 1})
		return c.IsClosed()
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return hub.GetClientCount(1) == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubShutdownNotifiesClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient(hub, "a", 1, 100)
	hub.Register <- c
	receive(t, c)

	hub.Shutdown()

	msg := receive(t, c)
	assert.Equal(t, TypeServerShutdown, msg.Type)

	hub.Wait()
	assert.True(t, c.IsClosed())
	assert.Equal(t, 0, hub.GetFeedCount())

	// late unregisters don't block once the hub is gone
	hub.unregister(c)
}
