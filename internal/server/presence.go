// Package server implements the Presence Registry: the in-memory store of
// active users keyed by connection id, with per-room username uniqueness.
package server

import (
	"errors"
	"strings"
	"sync"
)

// Registry validation errors surfaced to clients through join acks.
var (
	ErrFieldsRequired = errors.New("username and room are required")
	ErrUsernameTaken  = errors.New("username is in use")
	ErrIDRegistered   = errors.New("connection is already registered")
)

// User is one active chat participant bound to a single connection. The
// username and room are fixed for the life of the connection.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// Registry is the in-memory presence store. It is safe for concurrent use by
// multiple connection goroutines. Construct one per server with NewRegistry
// and pass it by reference into the connection handlers.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string
}

// NewRegistry returns an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*User),
	}
}

// AddUser validates and records a new user. Username and room are trimmed and
// must be non-empty; the username must not collide case-insensitively with
// another member of the same room. A connection id that is already registered
// is rejected rather than overwritten.
func (r *Registry) AddUser(id, username, room string) (*User, error) {
	username = strings.TrimSpace(username)
	room = strings.TrimSpace(room)

	if username == "" || room == "" {
		return nil, ErrFieldsRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[id]; exists {
		return nil, ErrIDRegistered
	}

	lowerUsername := strings.ToLower(username)
	lowerRoom := strings.ToLower(room)
	for _, existing := range r.users {
		if strings.ToLower(existing.Room) == lowerRoom &&
			strings.ToLower(existing.Username) == lowerUsername {
			return nil, ErrUsernameTaken
		}
	}

	user := &User{ID: id, Username: username, Room: room}
	r.users[id] = user
	r.order = append(r.order, id)
	return user, nil
}

// RemoveUser removes and returns the user registered under id. It returns nil
// for unknown ids, so it is safe to call on connections that never joined.
func (r *Registry) RemoveUser(id string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil
	}

	delete(r.users, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return user
}

// GetUser returns the user registered under id, or nil if none is.
func (r *Registry) GetUser(id string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[id]
}

// UsersInRoom returns the current members of room in registration order. The
// room name is matched exactly; "Lobby" and "lobby" are distinct rooms.
func (r *Registry) UsersInRoom(room string) []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		if user := r.users[id]; user != nil && user.Room == room {
			members = append(members, user)
		}
	}
	return members
}
