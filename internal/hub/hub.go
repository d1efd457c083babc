// Package hub implements topic based fan-out for realtime chat events.
// Visitor connections subscribe to their chat's room topic; dashboard
// connections additionally subscribe to the shared admin topic so every
// operator sees every conversation.
package hub

import (
	"sync"

	"github.com/real-rm/golog"

	"github.com/real-rm/supportchat/internal/metrics"
)

// TopicAdmins is the shared topic every dashboard connection joins.
// Room topics use the chat's session token as the topic name, which can
// never collide with this because session tokens carry a "session_" prefix.
const TopicAdmins = "admins"

// Subscriber is a destination for published frames. Implementations must
// make SafeSend non-blocking: return false instead of waiting when the
// subscriber cannot accept the frame.
type Subscriber interface {
	ID() string
	SafeSend(data []byte) bool
}

// Hub routes published frames to topic subscribers
type Hub struct {
	mu sync.RWMutex

	// topics maps topic name -> subscriber ID -> subscriber
	topics map[string]map[string]Subscriber

	// memberships maps subscriber ID -> set of topic names, so Drop can
	// remove a connection from every topic it joined
	memberships map[string]map[string]bool

	logger *golog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *golog.Logger) *Hub {
	return &Hub{
		topics:      make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]bool),
		logger:      logger.WithGroup("hub"),
	}
}

// Subscribe adds a subscriber to a topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// No else needed: initialize if needed (lazy initialization)
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]Subscriber)
	}
	h.topics[topic][sub.ID()] = sub

	// No else needed: initialize if needed (lazy initialization)
	if h.memberships[sub.ID()] == nil {
		h.memberships[sub.ID()] = make(map[string]bool)
	}
	h.memberships[sub.ID()][topic] = true

	h.logger.Debug("Subscriber joined topic",
		"topic", topic,
		"subscriber_id", sub.ID(),
		"topic_size", len(h.topics[topic]))
}

// Unsubscribe removes a subscriber from a single topic
func (h *Hub) Unsubscribe(topic, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(topic, subscriberID)
}

// Drop removes a subscriber from every topic it joined. Called when a
// connection closes.
func (h *Hub) Drop(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.memberships[subscriberID] {
		h.removeLocked(topic, subscriberID)
	}
}

// removeLocked removes one membership. Caller must hold h.mu.
func (h *Hub) removeLocked(topic, subscriberID string) {
	subs, ok := h.topics[topic]
	// No else needed: early return pattern (guard clause)
	if !ok {
		return
	}

	delete(subs, subscriberID)
	// No else needed: optional operation (drop empty topics)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}

	members := h.memberships[subscriberID]
	delete(members, topic)
	// No else needed: optional operation (drop empty membership sets)
	if len(members) == 0 {
		delete(h.memberships, subscriberID)
	}
}

// Publish sends a frame to every subscriber of a topic. Subscribers that
// cannot keep up are skipped rather than blocking the publisher.
func (h *Hub) Publish(topic string, data []byte) {
	h.publish(topic, "", data)
}

// PublishExcept sends a frame to every subscriber of a topic except the
// named one. Used for typing indicators, which must not echo back to the
// connection that produced them.
func (h *Hub) PublishExcept(topic, excludeID string, data []byte) {
	h.publish(topic, excludeID, data)
}

func (h *Hub) publish(topic, excludeID string, data []byte) {
	// Snapshot under the read lock so slow subscribers never hold it
	h.mu.RLock()
	subs := h.topics[topic]
	snapshot := make([]Subscriber, 0, len(subs))
	for id, sub := range subs {
		if id == excludeID {
			continue
		}
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		// No else needed: optional operation (count and log the drop)
		if !sub.SafeSend(data) {
			metrics.BroadcastDrops.Inc()
			h.logger.Warn("Dropped frame for slow subscriber",
				"topic", topic,
				"subscriber_id", sub.ID())
		}
	}
}

// TopicSize returns the number of subscribers on a topic
func (h *Hub) TopicSize(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
