// Package realtime pushes ride events to connected websocket clients and
// feeds driver telemetry back into dispatch.
package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the subscription registry: which clients belong to which user and
// which topics. Membership follows the connection lifecycle.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[*Client]struct{}
	topics map[string]map[*Client]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		users:  make(map[string]map[*Client]struct{}),
		topics: make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds the client to its user's channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug("client registered", zap.String("userId", c.UserID), zap.String("userType", c.UserType))
}

// Unregister removes the client from every channel and topic and closes
// its send queue. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Client) {
	set, ok := h.users[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.UserID)
	}
	for topic, members := range h.topics {
		delete(members, c)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	close(c.send)
	h.logger.Debug("client unregistered", zap.String("userId", c.UserID))
}

// Join subscribes a registered client to topic.
func (h *Hub) Join(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[c.UserID][c]; !ok {
		return
	}
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Client]struct{})
		h.topics[topic] = members
	}
	members[c] = struct{}{}
}

// SendToUser queues msg on every connection of userID and returns how many
// accepted it.
func (h *Hub) SendToUser(userID string, msg []byte) int {
	return h.send(func() map[*Client]struct{} { return h.users[userID] }, msg)
}

func (h *Hub) SendToTopic(topic string, msg []byte) int {
	return h.send(func() map[*Client]struct{} { return h.topics[topic] }, msg)
}

// sendToClient queues msg on a single connection if it is still registered.
func (h *Hub) sendToClient(c *Client, msg []byte) bool {
	return h.send(func() map[*Client]struct{} {
		if _, ok := h.users[c.UserID][c]; !ok {
			return nil
		}
		return map[*Client]struct{}{c: {}}
	}, msg) == 1
}

// send never blocks. A client whose queue is full is disconnected.
func (h *Hub) send(members func() map[*Client]struct{}, msg []byte) int {
	var slow []*Client
	delivered := 0

	h.mu.RLock()
	for c := range members() {
		select {
		case c.send <- msg:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			h.logger.Warn("dropping slow client", zap.String("userId", c.UserID))
			h.unregisterLocked(c)
		}
		h.mu.Unlock()
	}
	return delivered
}

// Stats reports connected users and driver pool size.
func (h *Hub) Stats() (users, drivers int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users), len(h.topics[DriverPoolTopic])
}
