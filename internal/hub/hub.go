package hub

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
)

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client represents a single client connection. It's essentially a channel
// that the websocket write pump listens to.
type Client chan []byte

// Session is the binding between a live connection and a registered identity.
type Session struct {
	ConnID     string `json:"-"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

// Hub tracks every live connection and which registered username, if any, it
// currently represents. At most one connection per username.
type Hub struct {
	clients  map[string]Client  // connection id -> outbound channel
	sessions map[string]Session // connection id -> bound identity
	byName   map[string]string  // username -> connection id
	mu       sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]Client),
		sessions: make(map[string]Session),
		byName:   make(map[string]string),
	}
}

// Add registers a new live connection before it has an identity.
func (h *Hub) Add(connID string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[connID] = client
}

// Remove drops a connection and its session binding, closing the client
// channel to signal the write pump to stop. It returns the session that was
// bound, if any, and is safe to call more than once per connection.
func (h *Hub) Remove(connID string) (Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return Session{}, false
	}
	delete(h.clients, connID)
	close(client)

	sess, bound := h.sessions[connID]
	if bound {
		delete(h.sessions, connID)
		delete(h.byName, sess.Username)
	}
	return sess, bound
}

// Bind associates a connection with a registered username. The connection
// must have been added first. A connection holds at most one binding: any
// previous identity on the same connection is dropped from the name index so
// a stale name can never resolve to it.
func (h *Hub) Bind(connID, username, profilePic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.sessions[connID]; ok {
		delete(h.byName, prev.Username)
	}
	sess := Session{ConnID: connID, Username: username, ProfilePic: profilePic}
	h.sessions[connID] = sess
	h.byName[username] = connID
}

// IsNameOnline reports whether any live session uses the username, compared
// case-insensitively.
func (h *Hub) IsNameOnline(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		if strings.EqualFold(sess.Username, username) {
			return true
		}
	}
	return false
}

// Lookup returns the connection id currently bound to the username.
func (h *Hub) Lookup(username string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	connID, ok := h.byName[username]
	return connID, ok
}

// Session returns the identity bound to a connection, if any.
func (h *Hub) Session(connID string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[connID]
	return sess, ok
}

// Sessions returns every bound session ordered by username, for the global
// online-user roster.
func (h *Hub) Sessions() []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Send delivers an event to one specific connection.
func (h *Hub) Send(connID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.send(connID, event)
}

// SendToUser delivers an event to the connection bound to the username. A
// user with no live session is silently skipped; they catch up from persisted
// history on their next registration.
func (h *Hub) SendToUser(username string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if connID, ok := h.byName[username]; ok {
		h.send(connID, event)
	}
}

// Broadcast sends an event to every live connection.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event.Type, err)
		return
	}
	for _, client := range h.clients {
		// Non-blocking send so a slow client cannot stall the hub.
		select {
		case client <- data:
		default:
		}
	}
}

func (h *Hub) send(connID string, event Event) {
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event.Type, err)
		return
	}
	select {
	case client <- data:
	default:
	}
}
