package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// RoomTopic is the broadcast topic of a lecture room.
func RoomTopic(id uuid.UUID) string { return "room:" + id.String() }

// UserTopic is the private broadcast topic of a user.
func UserTopic(id uuid.UUID) string { return "user:" + id.String() }

// RedisPublisher publishes topic events to Redis for cross-instance broadcast.
type RedisPublisher interface {
	PublishTopicEvent(origin, topic, event string, payload []byte) error
}

// RedisSubscriber subscribes to topic channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeTopic(topic string, handler func(origin, event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains topic -> set of connections and fans out events.
// Topics are room channels (room:<id>) and private user channels (user:<id>).
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to
// Redis, with an instance tag so a message is never delivered twice locally.
type Hub struct {
	instanceID string
	topics     map[string]map[string]*Client
	subs       map[string]func() // cancel Redis subscription per topic
	mu         sync.RWMutex
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		instanceID: uuid.New().String(),
		topics:     make(map[string]map[string]*Client),
		subs:       make(map[string]func()),
		logger:     logger,
		redis:      redisPub,
		redisSub:   redisSub,
	}
}

// Subscribe attaches a client to a topic. Idempotent. Starts the Redis
// subscription for this topic when the first client attaches.
func (h *Hub) Subscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeTopic(topic, func(origin, event string, payload []byte) {
				if origin == h.instanceID {
					return
				}
				h.Broadcast(topic, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[topic] = cancel
			}
		}
	}
	h.topics[topic][c.ID] = c
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("topic", topic))
}

// Unsubscribe detaches a client from a topic. Idempotent. Cancels the Redis
// subscription when the last client detaches.
func (h *Hub) Unsubscribe(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, c)
}

func (h *Hub) unsubscribeLocked(topic string, c *Client) {
	m, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; !ok {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.topics, topic)
		if cancel, ok := h.subs[topic]; ok {
			cancel()
			delete(h.subs, topic)
		}
	}
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("topic", topic))
}

// UnsubscribeAll detaches a client from every topic, used on disconnect.
func (h *Hub) UnsubscribeAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.topics {
		h.unsubscribeLocked(topic, c)
	}
}

// Broadcast delivers an event to local subscribers only. Delivery is
// at-most-once per subscribed connection: a connection whose send buffer is
// full is skipped rather than blocked on.
func (h *Hub) Broadcast(topic, event string, payload interface{}) {
	msg := envelope(event, payload)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(msg)
	}
}

// Publish delivers an event to local subscribers and to other instances via Redis.
func (h *Hub) Publish(topic, event string, payload interface{}) {
	h.PublishExcept(topic, "", event, payload)
}

// PublishExcept is Publish minus one local connection, used so that the
// origin of an event does not receive its own broadcast.
func (h *Hub) PublishExcept(topic, exceptClientID, event string, payload interface{}) {
	msg := envelope(event, payload)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.topics[topic]))
	for id, c := range h.topics[topic] {
		if id == exceptClientID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(msg)
	}

	if h.redis != nil {
		_ = h.redis.PublishTopicEvent(h.instanceID, topic, event, msg.Data)
	}
}

// Count returns the number of local connections subscribed to a topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func envelope(event string, payload interface{}) WSMessage {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	return WSMessage{Event: event, Data: data}
}
