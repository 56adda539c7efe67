// Package server defines the chat message value type, its constructors, and
// the JSON frame formats exchanged with clients.
package server

import (
	"encoding/json"
	"time"
)

// AdminName is the sender name used for server-generated messages such as
// welcome notes and join/leave announcements.
const AdminName = "Admin"

// Message is an ephemeral chat message. It is produced per send event,
// broadcast immediately, and never stored.
type Message struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// NewTextMessage builds a text message from the given sender stamped with the
// current time in milliseconds since the Unix epoch.
func NewTextMessage(sender, text string) Message {
	return Message{
		Username:  sender,
		Text:      text,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewLocationMessage builds a location message whose text field carries the
// maps URL for the sender's coordinates.
func NewLocationMessage(sender, mapsURL string) Message {
	return Message{
		Username:  sender,
		Text:      mapsURL,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// Inbound event names accepted from clients.
const (
	EventJoin         = "join"
	EventSendMessage  = "sendMessage"
	EventSendLocation = "sendLocation"
)

// Outbound event names emitted to clients.
const (
	EventMessage         = "message"
	EventLocationMessage = "locationMessage"
	EventRoomData        = "roomData"
	EventAck             = "ack"
)

// ClientFrame is the envelope for every client-to-server event. ID is a
// client-chosen sequence number echoed back in the matching ack frame.
type ClientFrame struct {
	Event string          `json:"event"`
	ID    uint64          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is the envelope for every server-to-client event. Error is set
// only on ack frames that report a failure.
type ServerFrame struct {
	Event string `json:"event"`
	ID    uint64 `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Coordinates is the payload of a sendLocation event.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RoomData is the payload of a roomData event: the room name and its current
// members in registration order.
type RoomData struct {
	Room  string  `json:"room"`
	Users []*User `json:"users"`
}
