// Package integration contains end-to-end tests for the Parley chat relay.
package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/test/testhelpers"
)

// TestHealthEndpoint verifies the liveness endpoint responds with plain text.
func TestHealthEndpoint(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Get(cs.HTTP.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to request health endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Expected text/plain content type, got %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read health response: %v", err)
	}
	if !strings.Contains(string(body), "running") {
		t.Errorf("Unexpected health response: %q", string(body))
	}
}

// TestStaticFallbackPage verifies that the built-in client page is served when
// the configured public directory does not exist.
func TestStaticFallbackPage(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Get(cs.HTTP.URL + "/")
	if err != nil {
		t.Fatalf("Failed to request index page: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Expected text/html content type, got %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read index page: %v", err)
	}
	if !strings.Contains(string(body), "<title>Parley</title>") {
		t.Error("Expected the built-in client page in the response body")
	}

	// Paths other than the root are not served by the fallback handler.
	other, err := http.Get(cs.HTTP.URL + "/missing.html")
	if err != nil {
		t.Fatalf("Failed to request missing page: %v", err)
	}
	defer func() { _ = other.Body.Close() }()
	if other.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, other.StatusCode)
	}
}

// TestWebSocketEndpointRejectsNonGet verifies the upgrade endpoint only
// accepts GET requests.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	resp, err := http.Post(cs.HTTP.URL+"/ws", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Failed to POST to websocket endpoint: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

// TestWebSocketRejectsDisallowedOrigin verifies the origin allow-list blocks
// upgrade attempts from unknown origins.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")

	conn, resp, err := websocket.DefaultDialer.Dial(cs.WSURL, header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected dial to fail for disallowed origin")
	}
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
		}
	}
}

// TestHubShutdownClosesLiveConnections verifies that shutting the hub down
// terminates connected clients.
func TestHubShutdownClosesLiveConnections(t *testing.T) {
	cs := testhelpers.StartChatServer(t)

	conn := cs.Dial(t)
	testhelpers.Join(t, conn, 1, "alice", "lobby")

	if err := cs.Hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
