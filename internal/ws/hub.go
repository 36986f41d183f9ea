package ws

import (
	"encoding/json"
	"sync"
)

// Event is a table-status change pushed to floor views.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// floorEvent routes an event to one floor's room.
type floorEvent struct {
	Floor string
	Event Event
}

// Hub maintains the set of active clients, one room per floor, and
// broadcasts status events to them.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *floorEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *floorEvent, 256),
	}
}

// Run starts the hub's main loop. Call as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.floor] == nil {
				h.rooms[client.floor] = make(map[*Client]bool)
			}
			h.rooms[client.floor][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.floor]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.floor)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.Floor]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full: drop the client rather than stall the floor.
					close(client.send)
					delete(h.rooms[event.Floor], client)
					if len(h.rooms[event.Floor]) == 0 {
						delete(h.rooms, event.Floor)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToFloor sends an event to every client watching a floor.
func (h *Hub) BroadcastToFloor(floor string, event Event) {
	h.broadcast <- &floorEvent{Floor: floor, Event: event}
}
