package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goldenwok-pos/printd/internal/enum"
	"github.com/goldenwok-pos/printd/internal/order"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)

	// Register client
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if !hub.clients[client] {
		t.Fatal("client not registered")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)

	// Register client
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	// Unregister client
	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.clients[client] {
		t.Fatal("client still registered after unregister")
	}
	if _, ok := <-client.send; ok {
		t.Fatal("send channel should be closed after unregister")
	}
}

func TestPublishJobReachesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub)
	client2 := mockClient(hub)
	client3 := mockClient(hub)

	// Register all clients
	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	printID := uuid.New()
	hub.PublishJob(enum.JobEventPrinted, &order.Order{
		ID:        "ord-123",
		OrderType: enum.OrderTypeTakeOut,
		Name:      "Jane",
		PrintID:   printID,
	})

	// All three clients should receive the event
	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != enum.JobEventPrinted {
				t.Errorf("client%d: expected type %q, got %q", i+1, enum.JobEventPrinted, received.Type)
			}

			var payload jobPayload
			if err := json.Unmarshal(received.Payload, &payload); err != nil {
				t.Fatalf("client%d: failed to unmarshal payload: %v", i+1, err)
			}
			if payload.OrderID != "ord-123" {
				t.Errorf("client%d: expected order_id 'ord-123', got %q", i+1, payload.OrderID)
			}
			if payload.PrintID != printID.String() {
				t.Errorf("client%d: expected print_id %q, got %q", i+1, printID, payload.PrintID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive event", i+1)
		}
	}
}

func TestPublishJobOmitsNilPrintID(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	// A manual reprint carries no queue entry
	hub.PublishJob(enum.JobEventQueued, &order.Order{
		ID:        "ord-456",
		OrderType: enum.OrderTypeDineIn,
	})

	select {
	case msg := <-client.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		var payload jobPayload
		if err := json.Unmarshal(received.Payload, &payload); err != nil {
			t.Fatalf("failed to unmarshal payload: %v", err)
		}
		if payload.PrintID != "" {
			t.Errorf("expected empty print_id, got %q", payload.PrintID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive event")
	}
}

func TestPublishJobWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Must not block or panic with nobody listening
	for i := 0; i < 10; i++ {
		hub.PublishJob(enum.JobEventPrinting, &order.Order{
			ID:        "ord-789",
			OrderType: enum.OrderTypeDineIn,
		})
	}
}

func TestEventSerialization(t *testing.T) {
	testCases := []struct {
		name  string
		event Event
	}{
		{
			name: "queued event",
			event: Event{
				Type:    enum.JobEventQueued,
				Payload: json.RawMessage(`{"order_id":"abc","order_type":"DINE_IN"}`),
			},
		},
		{
			name: "printed event",
			event: Event{
				Type:    enum.JobEventPrinted,
				Payload: json.RawMessage(`{"order_id":"def","name":"Jane"}`),
			},
		},
		{
			name: "failed event",
			event: Event{
				Type:    enum.JobEventFailed,
				Payload: json.RawMessage(`{"order_id":"ghi"}`),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.event)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}

			// Verify we can unmarshal back
			var decoded Event
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}

			if decoded.Type != tc.event.Type {
				t.Errorf("Type mismatch: got %s, want %s", decoded.Type, tc.event.Type)
			}
			if string(decoded.Payload) != string(tc.event.Payload) {
				t.Errorf("Payload mismatch: got %s, want %s", decoded.Payload, tc.event.Payload)
			}
		})
	}
}
