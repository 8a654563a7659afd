package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/auth"
)

func testClient() *Client {
	return newClient(nil, nil, auth.Identity{UserID: uuid.New(), Role: "student"}, zap.NewNop())
}

func nextMessage(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message, got none")
		return WSMessage{}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg.Event)
	default:
	}
}

func TestHubPublishDeliversToSubscribers(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a, b := testClient(), testClient()
	h.Subscribe("room:1", a)
	h.Subscribe("room:1", b)

	h.Publish("room:1", "ping", map[string]string{"k": "v"})

	for _, c := range []*Client{a, b} {
		msg := nextMessage(t, c)
		assert.Equal(t, "ping", msg.Event)
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "v", data["k"])
	}
}

func TestHubDeliversAtMostOncePerConnection(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	c := testClient()
	h.Subscribe("room:1", c)
	h.Subscribe("room:1", c) // repeat subscribe must not double-deliver

	h.Publish("room:1", "ping", nil)
	nextMessage(t, c)
	assertNoMessage(t, c)
}

func TestHubTopicIsolation(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a, b := testClient(), testClient()
	h.Subscribe("room:1", a)
	h.Subscribe("room:2", b)

	h.Publish("room:1", "ping", nil)
	nextMessage(t, a)
	assertNoMessage(t, b)
}

func TestHubPublishExcept(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a, b := testClient(), testClient()
	h.Subscribe("room:1", a)
	h.Subscribe("room:1", b)

	h.PublishExcept("room:1", a.ID, "ping", nil)
	nextMessage(t, b)
	assertNoMessage(t, a)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	c := testClient()
	h.Subscribe("room:1", c)
	h.Unsubscribe("room:1", c)
	h.Unsubscribe("room:1", c) // idempotent

	h.Publish("room:1", "ping", nil)
	assertNoMessage(t, c)
	assert.Equal(t, 0, h.Count("room:1"))
}

func TestHubUnsubscribeAll(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	c := testClient()
	h.Subscribe("room:1", c)
	h.Subscribe("user:x", c)

	h.UnsubscribeAll(c)
	h.Publish("room:1", "ping", nil)
	h.Publish("user:x", "ping", nil)
	assertNoMessage(t, c)
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	c := testClient()
	h.Subscribe("room:1", c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(c.send)+10; i++ {
			h.Publish("room:1", "flood", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

type bridgeCall struct {
	origin, topic, event string
	payload              []byte
}

type fakeBridge struct {
	mu        sync.Mutex
	published []bridgeCall
	handlers  map[string]func(origin, event string, payload []byte)
	cancelled map[string]int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		handlers:  make(map[string]func(origin, event string, payload []byte)),
		cancelled: make(map[string]int),
	}
}

func (f *fakeBridge) PublishTopicEvent(origin, topic, event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, bridgeCall{origin, topic, event, payload})
	return nil
}

func (f *fakeBridge) SubscribeTopic(topic string, handler func(origin, event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled[topic]++
	}, nil
}

func TestHubRedisFanOutSkipsOwnMessages(t *testing.T) {
	bridge := newFakeBridge()
	h := NewHub(zap.NewNop(), bridge, bridge)
	c := testClient()
	h.Subscribe("room:1", c)

	h.Publish("room:1", "ping", map[string]string{"k": "v"})
	nextMessage(t, c)

	bridge.mu.Lock()
	require.Len(t, bridge.published, 1)
	own := bridge.published[0]
	handler := bridge.handlers["room:1"]
	bridge.mu.Unlock()
	require.NotNil(t, handler)

	// Redis echoes the instance's own publish back; it must not deliver twice.
	handler(own.origin, own.event, own.payload)
	assertNoMessage(t, c)

	// A message from another instance is delivered.
	handler("other-instance", "ping", own.payload)
	msg := nextMessage(t, c)
	assert.Equal(t, "ping", msg.Event)
}

func TestHubCancelsRedisSubscriptionWhenTopicEmpties(t *testing.T) {
	bridge := newFakeBridge()
	h := NewHub(zap.NewNop(), bridge, bridge)
	a, b := testClient(), testClient()
	h.Subscribe("room:1", a)
	h.Subscribe("room:1", b)

	h.Unsubscribe("room:1", a)
	bridge.mu.Lock()
	assert.Equal(t, 0, bridge.cancelled["room:1"])
	bridge.mu.Unlock()

	h.Unsubscribe("room:1", b)
	bridge.mu.Lock()
	assert.Equal(t, 1, bridge.cancelled["room:1"])
	bridge.mu.Unlock()
}
