package session

import "sync"

// Hub tracks the live call sessions on this instance, keyed by room name.
// Webhook handlers use it to route room events to the owning session.
type Hub struct {
	mu     sync.RWMutex
	byRoom map[string]*CallSession
}

// NewHub returns an empty session hub.
func NewHub() *Hub {
	return &Hub{byRoom: make(map[string]*CallSession)}
}

// Add registers a session under its room name, replacing any previous entry.
func (h *Hub) Add(cs *CallSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byRoom[cs.RoomName()] = cs
}

// Remove drops a session, but only if it is still the registered one for its
// room.
func (h *Hub) Remove(cs *CallSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.byRoom[cs.RoomName()]; ok && current == cs {
		delete(h.byRoom, cs.RoomName())
	}
}

// Lookup returns the session for a room, if any.
func (h *Hub) Lookup(roomName string) (*CallSession, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cs, ok := h.byRoom[roomName]
	return cs, ok
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byRoom)
}
