package realtime

import (
	"encoding/json"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks connected clients and the channels they subscribed to.
// Subscribers of a channel are kept in subscription order.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	channels map[string][]*Client
	log      *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		channels: make(map[string][]*Client),
		log:      log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes c everywhere and returns the channels it was subscribed to.
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)
	var left []string
	for channel, subs := range h.channels {
		if i := slices.Index(subs, c); i >= 0 {
			h.removeAt(channel, i)
			left = append(left, channel)
		}
	}
	slices.Sort(left)
	return left
}

// Subscribe reports false when c already is a subscriber.
func (h *Hub) Subscribe(channel string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if slices.Contains(h.channels[channel], c) {
		return false
	}
	h.channels[channel] = append(h.channels[channel], c)
	return true
}

// Unsubscribe reports whether c was subscribed.
func (h *Hub) Unsubscribe(channel string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := slices.Index(h.channels[channel], c)
	if i < 0 {
		return false
	}
	h.removeAt(channel, i)
	return true
}

func (h *Hub) removeAt(channel string, i int) {
	subs := slices.Delete(h.channels[channel], i, i+1)
	if len(subs) == 0 {
		delete(h.channels, channel)
		return
	}
	h.channels[channel] = subs
}

func (h *Hub) Subscribers(channel string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.channels[channel])
}

// HasUser reports whether any connection of userID is subscribed to channel.
func (h *Hub) HasUser(channel, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.ContainsFunc(h.channels[channel], func(c *Client) bool { return c.UserID == userID })
}

// Broadcast sends msg to every subscriber of channel except the given client.
func (h *Hub) Broadcast(channel string, msg Message, except *Client) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}
	for _, c := range h.Subscribers(channel) {
		if c != except {
			c.enqueue(data)
		}
	}
}

// BroadcastAll sends msg to every connected client except the given one.
func (h *Hub) BroadcastAll(msg Message, except *Client) {
	data, ok := h.encode(msg)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// Notify publishes a room event to everyone in the room channel.
func (h *Hub) Notify(roomID, event string, data any) {
	h.Broadcast(roomID, Message{Event: event, Data: data}, nil)
}

func (h *Hub) encode(msg Message) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("marshal %s event: %v", msg.Event, err)
		return nil, false
	}
	return data, true
}
