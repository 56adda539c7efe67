// Package server coordinates connection registration, room subscriptions,
// message fan-out, and connection cleanup via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

type subscription struct {
	client *Client
	room   string
}

type roomBroadcast struct {
	room    string
	payload []byte
	except  *Client
}

type directMessage struct {
	client  *Client
	payload []byte
}

// Hub manages all WebSocket connections and delivers events to room members.
// All membership state is owned by the Run loop, so the deliveries triggered
// by one inbound event are emitted in order before the next event is handled.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan roomBroadcast
	direct     chan directMessage
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates an initialized Hub ready to manage connections. Call Run in
// its own goroutine before registering clients.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan roomBroadcast),
		direct:     make(chan directMessage),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub, which launches its pumps.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection from the hub and its room, if any.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe attaches a joined client to its room's broadcast channel.
func (h *Hub) Subscribe(client *Client, room string) {
	select {
	case h.subscribe <- subscription{client: client, room: room}:
	case <-h.ctx.Done():
	}
}

// BroadcastToRoom delivers payload to every member of room. A non-nil except
// is skipped, which implements announcements addressed to everyone else.
func (h *Hub) BroadcastToRoom(room string, payload []byte, except *Client) {
	select {
	case h.broadcast <- roomBroadcast{room: room, payload: payload, except: except}:
	case <-h.ctx.Done():
	}
}

// SendTo delivers payload to a single client.
func (h *Hub) SendTo(client *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: client, payload: payload}:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling registration, room
// subscriptions, and fan-out. This method should be called in a separate
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.leaveRoomLocked(client)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				log.Printf("Client %s disconnected from %s. Total clients: %d", client.id, client.addr, clientCount)
			} else {
				h.mutex.Unlock()
			}

		case sub := <-h.subscribe:
			h.mutex.Lock()
			if _, ok := h.clients[sub.client]; ok {
				members, exists := h.rooms[sub.room]
				if !exists {
					members = make(map[*Client]bool)
					h.rooms[sub.room] = members
				}
				members[sub.client] = true
				sub.client.room = sub.room
			}
			h.mutex.Unlock()

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case msg := <-h.direct:
			if !h.safeSend(msg.client, msg.payload) {
				h.removeFailedClients([]*Client{msg.client})
			}
		}
	}
}

// leaveRoomLocked detaches client from its room membership set. Callers must
// hold the mutex.
func (h *Hub) leaveRoomLocked(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// handleBroadcast fans a payload out to the members of one room, skipping the
// excluded sender when one is set.
func (h *Hub) handleBroadcast(msg roomBroadcast) {
	members := h.roomSnapshot(msg.room)

	var clientsToRemove []*Client
	for _, client := range members {
		if msg.except != nil && client == msg.except {
			continue
		}
		if !h.safeSend(client, msg.payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// roomSnapshot returns a thread-safe snapshot of a room's current members.
func (h *Hub) roomSnapshot(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	return members
}

// removeFailedClients removes clients that failed to receive messages and closes their channels
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			h.leaveRoomLocked(client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client from %s removed due to full send buffer", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete. It returns after all client connections are closed and the pump
// goroutines have finished, or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
