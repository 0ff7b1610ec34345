package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event is a WebSocket message broadcast to review dashboards, e.g.
// order.status_changed or order.pricing_updated.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// companyEvent routes an event to one company's room
type companyEvent struct {
	CompanyID uuid.UUID
	Event     Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by company ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan *companyEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *companyEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.companyID] == nil {
				h.rooms[client.companyID] = make(map[*Client]bool)
			}
			h.rooms[client.companyID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.companyID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.companyID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.CompanyID]

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.rooms[event.CompanyID], client)
					if len(h.rooms[event.CompanyID]) == 0 {
						delete(h.rooms, event.CompanyID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToCompany sends an event to all clients watching a company's
// orders. This is the public API for handlers to broadcast events.
func (h *Hub) BroadcastToCompany(companyID uuid.UUID, event Event) {
	h.broadcast <- &companyEvent{
		CompanyID: companyID,
		Event:     event,
	}
}
