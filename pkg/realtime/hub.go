// Package realtime pushes server events to connected websocket clients,
// grouped into rooms such as "user:<id>".
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// EventNotificationNew is emitted after a notification row is created.
const EventNotificationNew = "notification:new"

// UserRoom returns the room a user's sockets join on connect.
func UserRoom(userID string) string {
	return "user:" + userID
}

// Emitter publishes an event to every socket in a room.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// Envelope is the frame written to clients.
type Envelope struct {
	Room  string          `json:"room,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub tracks live clients by room. Emit never blocks on a slow client; a
// client whose buffer is full is dropped.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	logg  *logger.Logger
}

func NewHub(logg *logger.Logger) *Hub {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Hub{rooms: map[string]map[*Client]struct{}{}, logg: logg}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = map[*Client]struct{}{}
		}
		h.rooms[room][c] = struct{}{}
	}
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Connections returns the number of clients in room.
func (h *Hub) Connections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Emit(_ context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Room: room, Event: event, Data: data})
	if err != nil {
		return err
	}
	h.deliver(room, frame)
	return nil
}

func (h *Hub) deliver(room string, frame []byte) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logg.Warn(h.logg.WithField(context.Background(), "room", room), "realtime client too slow; disconnecting")
		c.close()
	}
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown(_ context.Context) {
	h.mu.RLock()
	var all []*Client
	for _, clients := range h.rooms {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}
