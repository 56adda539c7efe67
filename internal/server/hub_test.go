package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addClient inserts a client into the hub's connection set without starting
// the network pumps, so hub delivery can be observed on the send channel.
func addClient(h *Hub, c *Client) {
	h.mutex.Lock()
	h.clients[c] = true
	h.mutex.Unlock()
}

func receive(t *testing.T, c *Client, timeout time.Duration) []byte {
	t.Helper()
	select {
	case payload := <-c.GetSendChan():
		return payload
	case <-time.After(timeout):
		t.Fatal("Timed out waiting for hub delivery")
		return nil
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	require.NotNil(t, hub)

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.rooms)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.subscribe)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.direct)
}

func TestHubBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub()
	registry := NewRegistry()

	lobbyA := NewClient(nil, hub, registry, "127.0.0.1:1001")
	lobbyB := NewClient(nil, hub, registry, "127.0.0.1:1002")
	games := NewClient(nil, hub, registry, "127.0.0.1:1003")
	addClient(hub, lobbyA)
	addClient(hub, lobbyB)
	addClient(hub, games)

	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	hub.Subscribe(lobbyA, "lobby")
	hub.Subscribe(lobbyB, "lobby")
	hub.Subscribe(games, "games")

	payload := []byte(`{"event":"message"}`)
	hub.BroadcastToRoom("lobby", payload, nil)

	assert.Equal(t, payload, receive(t, lobbyA, time.Second))
	assert.Equal(t, payload, receive(t, lobbyB, time.Second))
	assert.Empty(t, games.GetSendChan())
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	registry := NewRegistry()

	sender := NewClient(nil, hub, registry, "127.0.0.1:1001")
	other := NewClient(nil, hub, registry, "127.0.0.1:1002")
	addClient(hub, sender)
	addClient(hub, other)

	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	hub.Subscribe(sender, "lobby")
	hub.Subscribe(other, "lobby")

	hub.BroadcastToRoom("lobby", []byte("announcement"), sender)

	assert.Equal(t, []byte("announcement"), receive(t, other, time.Second))
	assert.Empty(t, sender.GetSendChan())
}

func TestHubDirectDeliversToOneClient(t *testing.T) {
	hub := NewHub()
	registry := NewRegistry()

	target := NewClient(nil, hub, registry, "127.0.0.1:1001")
	bystander := NewClient(nil, hub, registry, "127.0.0.1:1002")
	addClient(hub, target)
	addClient(hub, bystander)

	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	hub.Subscribe(target, "lobby")
	hub.Subscribe(bystander, "lobby")

	hub.SendTo(target, []byte("welcome"))

	assert.Equal(t, []byte("welcome"), receive(t, target, time.Second))
	assert.Empty(t, bystander.GetSendChan())
}

func TestHubUnregisterRemovesRoomMembership(t *testing.T) {
	hub := NewHub()
	registry := NewRegistry()

	leaver := NewClient(nil, hub, registry, "127.0.0.1:1001")
	stayer := NewClient(nil, hub, registry, "127.0.0.1:1002")
	addClient(hub, leaver)
	addClient(hub, stayer)

	go hub.Run()
	defer func() { _ = hub.Shutdown(time.Second) }()

	hub.Subscribe(leaver, "lobby")
	hub.Subscribe(stayer, "lobby")

	hub.Unregister(leaver)
	hub.BroadcastToRoom("lobby", []byte("after"), nil)

	assert.Equal(t, []byte("after"), receive(t, stayer, time.Second))

	// The leaver's send channel is closed on unregister.
	_, open := <-leaver.GetSendChan()
	assert.False(t, open)
}

func TestHubShutdownCompletes(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))
}
