// Package server manages individual WebSocket clients, handling read/write
// pumps and the per-connection session protocol (join, sendMessage,
// sendLocation, disconnect).
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrNotJoined is reported through the ack frame when a client invokes
// sendMessage or sendLocation before a successful join.
var ErrNotJoined = errors.New("must join a room first")

// Client represents one WebSocket connection in the chat system. Its session
// state lives in the Presence Registry under the client's connection id: a
// registered user means the session has joined a room.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	registry       *Registry
	addr           string
	room           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a Client for the given connection with a freshly assigned
// connection id. The send channel is buffered to absorb broadcast bursts.
func NewClient(conn *websocket.Conn, hub *Hub, registry *Registry, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             uuid.New().String(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		registry:       registry,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ID returns the server-assigned connection identifier.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.handleDisconnect()
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		c.processFrame(rawMessage)
	}
}

// processFrame decodes one inbound frame and dispatches it by event name.
// Malformed JSON is logged and dropped; unknown events get an error ack.
func (c *Client) processFrame(rawMessage []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(rawMessage, &frame); err != nil {
		log.Printf("Invalid frame from %s: %v", c.addr, err)
		return
	}

	switch frame.Event {
	case EventJoin:
		c.handleJoin(frame)
	case EventSendMessage:
		c.handleSendMessage(frame)
	case EventSendLocation:
		c.handleSendLocation(frame)
	default:
		c.ack(frame.ID, fmt.Errorf("unknown event %q", frame.Event))
	}
}

// handleJoin registers the user and, on success, subscribes the connection to
// its room, welcomes the joiner privately, announces the join to the rest of
// the room, and refreshes the room roster for everyone. A failed join leaves
// the connection open so the client may retry.
func (c *Client) handleJoin(frame ClientFrame) {
	var req JoinRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.ack(frame.ID, fmt.Errorf("invalid join payload: %w", err))
		return
	}

	user, err := c.registry.AddUser(c.id, req.Username, req.Room)
	if err != nil {
		c.ack(frame.ID, err)
		return
	}

	log.Printf("Client %s joined room %q as %q", c.id, user.Room, user.Username)

	c.hub.Subscribe(c, user.Room)
	c.sendEvent(EventMessage, NewTextMessage(AdminName, "Welcome!"))
	c.broadcastEvent(user.Room, EventMessage,
		NewTextMessage(AdminName, fmt.Sprintf("%s has joined!", user.Username)), c)
	c.broadcastEvent(user.Room, EventRoomData,
		RoomData{Room: user.Room, Users: c.registry.UsersInRoom(user.Room)}, nil)
	c.ack(frame.ID, nil)
}

func (c *Client) handleSendMessage(frame ClientFrame) {
	var text string
	if err := json.Unmarshal(frame.Data, &text); err != nil {
		c.ack(frame.ID, fmt.Errorf("invalid message payload: %w", err))
		return
	}

	user := c.registry.GetUser(c.id)
	if user == nil {
		c.ack(frame.ID, ErrNotJoined)
		return
	}

	c.broadcastEvent(user.Room, EventMessage, NewTextMessage(user.Username, text), nil)
	c.ack(frame.ID, nil)
}

func (c *Client) handleSendLocation(frame ClientFrame) {
	var coords Coordinates
	if err := json.Unmarshal(frame.Data, &coords); err != nil {
		c.ack(frame.ID, fmt.Errorf("invalid location payload: %w", err))
		return
	}

	user := c.registry.GetUser(c.id)
	if user == nil {
		c.ack(frame.ID, ErrNotJoined)
		return
	}

	mapsURL := fmt.Sprintf("https://google.com/maps?q=%v,%v", coords.Latitude, coords.Longitude)
	c.broadcastEvent(user.Room, EventLocationMessage, NewLocationMessage(user.Username, mapsURL), nil)
	c.ack(frame.ID, nil)
}

// handleDisconnect removes the user from the registry and, if the connection
// had joined a room, announces the departure and refreshes the roster for the
// remaining members. Connections that never joined produce no broadcast.
func (c *Client) handleDisconnect() {
	user := c.registry.RemoveUser(c.id)
	c.hub.Unregister(c)

	if user == nil {
		return
	}

	c.broadcastEvent(user.Room, EventMessage,
		NewTextMessage(AdminName, fmt.Sprintf("%s has left!", user.Username)), nil)
	c.broadcastEvent(user.Room, EventRoomData,
		RoomData{Room: user.Room, Users: c.registry.UsersInRoom(user.Room)}, nil)
}

// ack reports completion of one client-initiated event, echoing its sequence
// id. A non-nil err is delivered as a human-readable string.
func (c *Client) ack(id uint64, err error) {
	frame := ServerFrame{Event: EventAck, ID: id}
	if err != nil {
		frame.Error = err.Error()
	}
	c.deliver(frame, nil, "")
}

// sendEvent delivers an event to this connection only.
func (c *Client) sendEvent(event string, data any) {
	c.deliver(ServerFrame{Event: event, Data: data}, nil, "")
}

// broadcastEvent delivers an event to every member of room, minus except when
// it is non-nil.
func (c *Client) broadcastEvent(room, event string, data any, except *Client) {
	c.deliver(ServerFrame{Event: event, Data: data}, except, room)
}

func (c *Client) deliver(frame ServerFrame, except *Client, room string) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Error encoding %s frame for %s: %v", frame.Event, c.addr, err)
		return
	}
	if room == "" {
		c.hub.SendTo(c, payload)
		return
	}
	c.hub.BroadcastToRoom(room, payload, except)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return c.writeCloseMessage()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		// Only log unexpected connection close errors
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage writes one outgoing frame and returns false if the connection
// should be closed. Frames are written one per WebSocket message so each
// arrives as a standalone JSON document.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
