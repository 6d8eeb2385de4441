// Package websocket provides the live operations feed: reservation status changes, sweep results and penalties.
package websocket

import (
	"log"
	"sort"
	"sync"
)

type envelope struct {
	topic string
	data  []byte
}

// Hub maintains the set of active WebSocket clients and fans out published events.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events
	publish chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Guards clients and each client's topic set
	mu sync.RWMutex

	done chan struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		publish:    make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until Close is called.
// This should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", total)

		case env := <-h.publish:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(env.topic) {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					// Client send buffer full, close connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close stops the event loop and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

// Publish sends data to every client subscribed to topic.
func (h *Hub) Publish(topic string, data []byte) {
	select {
	case h.publish <- envelope{topic: topic, data: data}:
	default:
		log.Println("Publish channel full, dropping message")
	}
}

// Reply queues data for client alone. It reports false if the client is gone or backed up.
func (h *Hub) Reply(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribe limits the client to the given topics. An empty topic set receives everything.
func (h *Hub) Subscribe(client *Client, topics ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		client.topics[t] = true
	}
	return client.topicList()
}

// Unsubscribe removes topics from the client's subscription.
func (h *Hub) Unsubscribe(client *Client, topics ...string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		delete(client.topics, t)
	}
	return client.topicList()
}

// Client represents a WebSocket client connection.
type Client struct {
	hub    *Hub
	send   chan []byte
	topics map[string]bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

func (c *Client) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

func (c *Client) topicList() []string {
	list := make([]string, 0, len(c.topics))
	for t := range c.topics {
		list = append(list, t)
	}
	sort.Strings(list)
	return list
}
