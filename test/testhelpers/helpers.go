// Package testhelpers provides common utilities for testing the Parley chat relay.
//
// This package contains reusable test utilities shared across unit and
// integration tests: starting a fully wired test server, dialing WebSocket
// connections, and exchanging protocol frames with deadline handling.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/server"
)

// Frame mirrors the server's wire envelope from the client's point of view.
type Frame struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// ChatMessage is the decoded payload of message and locationMessage events.
type ChatMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// RoomData is the decoded payload of roomData events.
type RoomData struct {
	Room  string `json:"room"`
	Users []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Room     string `json:"room"`
	} `json:"users"`
}

// ChatServer bundles a running test server with the hub and registry behind it.
type ChatServer struct {
	HTTP     *httptest.Server
	Hub      *server.Hub
	Registry *server.Registry
	WSURL    string
}

// StartChatServer starts a fully wired chat relay on an httptest server with
// the test server's own URL added to the allowed origins. Cleanup is
// registered on t automatically.
func StartChatServer(t *testing.T) *ChatServer {
	t.Helper()

	hub := server.NewHub()
	registry := server.NewRegistry()
	go hub.Run()

	// Point the static route at a directory that does not exist so the
	// server falls back to its built-in client page.
	mux := server.SetupRoutes(hub, registry, filepath.Join(t.TempDir(), "public"))
	testServer := httptest.NewServer(mux)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{testServer.URL}, cfg.AllowedOrigins...)
	server.SetConfig(cfg)

	u, err := url.Parse(testServer.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	t.Cleanup(func() {
		testServer.Close()
		if err := hub.Shutdown(2 * time.Second); err != nil {
			t.Logf("Hub shutdown returned: %v", err)
		}
		server.SetConfig(nil)
	})

	return &ChatServer{
		HTTP:     testServer,
		Hub:      hub,
		Registry: registry,
		WSURL:    u.String(),
	}
}

// Dial opens a WebSocket connection to the chat server with an allowed Origin
// header and registers the connection for cleanup.
func (cs *ChatServer) Dial(t *testing.T) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", cs.HTTP.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(cs.WSURL, header)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendFrame writes one client frame to the connection.
func SendFrame(t *testing.T, conn *websocket.Conn, event string, id uint64, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	frame := struct {
		Event string          `json:"event"`
		ID    uint64          `json:"id"`
		Data  json.RawMessage `json:"data,omitempty"`
	}{Event: event, ID: id, Data: payload}

	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s frame: %v", event, err)
	}
}

// ReadFrame reads the next server frame from the connection, failing the test
// if none arrives within the timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	return frame
}

// ExpectNoFrame asserts that no frame arrives on the connection within the
// timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no frame, but received one")
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of frame: %v", err)
}

// DecodeMessage unmarshals a message or locationMessage frame payload.
func DecodeMessage(t *testing.T, frame Frame) ChatMessage {
	t.Helper()

	var msg ChatMessage
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", frame.Event, err)
	}
	return msg
}

// DecodeRoomData unmarshals a roomData frame payload.
func DecodeRoomData(t *testing.T, frame Frame) RoomData {
	t.Helper()

	var data RoomData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("Failed to decode roomData payload: %v", err)
	}
	return data
}

// Join performs a join handshake on the connection and consumes the welcome,
// roomData, and ack frames the joiner receives, failing on an error ack.
func Join(t *testing.T, conn *websocket.Conn, id uint64, username, room string) {
	t.Helper()

	SendFrame(t, conn, "join", id, map[string]string{"username": username, "room": room})

	welcome := ReadFrame(t, conn, time.Second)
	if welcome.Event != "message" {
		t.Fatalf("Expected welcome message frame, got %q", welcome.Event)
	}

	roomData := ReadFrame(t, conn, time.Second)
	if roomData.Event != "roomData" {
		t.Fatalf("Expected roomData frame, got %q", roomData.Event)
	}

	ack := ReadFrame(t, conn, time.Second)
	if ack.Event != "ack" || ack.ID != id {
		t.Fatalf("Expected ack for frame %d, got %q (id %d)", id, ack.Event, ack.ID)
	}
	if ack.Error != "" {
		t.Fatalf("Join failed: %s", ack.Error)
	}
}
