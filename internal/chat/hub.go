// Package chat relays support-chat messages between the members of a room.
// Rooms are keyed by the owning account's identifier; registry state is
// in-memory only and resets on restart.
package chat

import (
	"sync"
)

// Conn is the write surface the hub needs from a connection. A
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
}

// Hub is the room registry. All access goes through the mutex; join,
// leave and broadcast are each atomic with respect to one another.
type Hub struct {
	mu    sync.Mutex
	rooms map[string][]Conn
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string][]Conn)}
}

// Join registers the connection under the room, creating the room on
// first join. Connections receive broadcasts in join order.
func (h *Hub) Join(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rooms[roomID] = append(h.rooms[roomID], c)
}

// Leave removes the connection. An emptied room is deleted so the
// registry does not grow with every account that ever opened a chat.
func (h *Hub) Leave(roomID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(roomID, c)
}

// Broadcast sends the payload to every member of the room in join order
// and returns the number of successful sends. A connection whose send
// fails is treated as dead and removed immediately.
func (h *Hub) Broadcast(roomID string, payload any) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[roomID]
	var dead []Conn
	sent := 0
	for _, c := range members {
		if err := c.WriteJSON(payload); err != nil {
			dead = append(dead, c)
			continue
		}
		sent++
	}
	for _, c := range dead {
		h.removeLocked(roomID, c)
	}
	return sent
}

// RoomSize reports the current member count of a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

func (h *Hub) removeLocked(roomID string, c Conn) {
	members := h.rooms[roomID]
	for i, member := range members {
		if member == c {
			h.rooms[roomID] = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
}
