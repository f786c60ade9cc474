package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goldenwok-pos/printd/internal/order"
)

// Event is a WebSocket message broadcast to dashboard clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// jobPayload is what dashboards see about a job lifecycle change.
type jobPayload struct {
	PrintID   string    `json:"print_id,omitempty"`
	OrderID   string    `json:"order_id"`
	OrderType string    `json:"order_type"`
	Name      string    `json:"name,omitempty"`
	At        time.Time `json:"at"`
}

// Hub maintains the set of connected clients and broadcasts job lifecycle
// events to all of them. There is one printer and one queue, so there are
// no rooms: every client sees every event.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	mu sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// PublishJob broadcasts a job lifecycle event for the given order.
// Satisfies the dispatch queue's Notifier; never blocks the worker.
func (h *Hub) PublishJob(eventType string, o *order.Order) {
	printID := ""
	if o.PrintID != uuid.Nil {
		printID = o.PrintID.String()
	}
	payload, err := json.Marshal(jobPayload{
		PrintID:   printID,
		OrderID:   o.ID,
		OrderType: o.OrderType,
		Name:      o.Name,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- Event{Type: eventType, Payload: payload}:
	default:
		// Broadcast buffer full; dropping a dashboard event is preferable
		// to stalling the print worker.
	}
}
