// Package server exposes HTTP handlers: the WebSocket upgrade endpoint, a
// health check, and the static client UI.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// NewWebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates that the request uses the GET method, upgrades the connection,
// and registers a new Client with the hub, which starts the read/write pumps.
// The hub and registry are passed in explicitly so tests can run isolated
// instances side by side.
func NewWebSocketHandler(hub *Hub, registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, registry, r.RemoteAddr)
		hub.Register(client)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Parley chat relay is running!")
}

// NewStaticHandler serves the client UI from publicDir. When the directory
// does not exist, it falls back to a built-in single-page chat client so the
// server remains usable out of the box.
func NewStaticHandler(publicDir string) http.Handler {
	if info, err := os.Stat(publicDir); err == nil && info.IsDir() {
		return http.FileServer(http.Dir(filepath.Clean(publicDir)))
	}

	log.Printf("Public directory %q not found; serving built-in client page", publicDir)
	return http.HandlerFunc(fallbackPageHandler)
}

// fallbackPageHandler serves a minimal chat client wired to the /ws frame
// protocol, useful for manual testing without a deployed front end.
func fallbackPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Parley</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
    </style>
</head>
<body>
    <h1>Parley</h1>

    <div>
        <input type="text" id="username" placeholder="Username">
        <input type="text" id="room" placeholder="Room">
        <button onclick="join()">Join</button>
    </div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="locationButton" onclick="sendLocation()" disabled>Share location</button>
    </div>

    <script>
        let ws = null;
        let seq = 0;
        const messagesDiv = document.getElementById('messages');

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function send(event, data) {
            seq++;
            ws.send(JSON.stringify({event: event, id: seq, data: data}));
        }

        function join() {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() {
                send('join', {
                    username: document.getElementById('username').value,
                    room: document.getElementById('room').value
                });
            };
            ws.onmessage = function(e) {
                const frame = JSON.parse(e.data);
                if (frame.event === 'ack') {
                    if (frame.error) {
                        addLine('Error: ' + frame.error);
                    } else if (frame.id === 1) {
                        document.getElementById('messageInput').disabled = false;
                        document.getElementById('sendButton').disabled = false;
                        document.getElementById('locationButton').disabled = false;
                    }
                } else if (frame.event === 'message') {
                    addLine(frame.data.username + ': ' + frame.data.text);
                } else if (frame.event === 'locationMessage') {
                    addLine(frame.data.username + ' shared ' + frame.data.text);
                } else if (frame.event === 'roomData') {
                    addLine('In ' + frame.data.room + ': ' +
                        frame.data.users.map(u => u.username).join(', '));
                }
            };
            ws.onclose = function() { addLine('Connection closed'); };
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            if (input.value && ws) {
                send('sendMessage', input.value);
                input.value = '';
            }
        }

        function sendLocation() {
            if (!navigator.geolocation || !ws) return;
            navigator.geolocation.getCurrentPosition(function(pos) {
                send('sendLocation', {
                    latitude: pos.coords.latitude,
                    longitude: pos.coords.longitude
                });
            });
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
