package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lecturehall/backend/internal/auth"
	"github.com/lecturehall/backend/internal/capture"
)

type connState int

const (
	stateIdle connState = iota
	stateInRoom
	stateDisconnected
)

// Client is one WebSocket connection and its session state. A connection is
// Idle until it joins a lecture room, InRoom while a member, and Disconnected
// once the socket closes. All state transitions happen under mu.
type Client struct {
	ID          string
	Identity    auth.Identity
	ConnectedAt time.Time

	gw     *Gateway
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger

	mu           sync.Mutex
	state        connState
	roomID       uuid.UUID // valid while state == stateInRoom
	attendanceID uuid.UUID // open attendance log row, uuid.Nil when none
	sessionID    uuid.UUID // active transcription session, uuid.Nil when none
	source       *capture.PushSource
}

func newClient(gw *Gateway, conn *websocket.Conn, identity auth.Identity, logger *zap.Logger) *Client {
	return &Client{
		ID:          uuid.New().String(),
		Identity:    identity,
		ConnectedAt: time.Now(),
		gw:          gw,
		conn:        conn,
		send:        make(chan WSMessage, 256),
		logger:      logger,
	}
}

// enqueue delivers a message to this connection without blocking. A
// connection whose buffer is full misses the message.
func (c *Client) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("dropping message for slow client", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	c.enqueue(envelope(event, payload))
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventError, ErrorPayload{Code: code, Message: message})
}

// room returns the current room when InRoom.
func (c *Client) room() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.state == stateInRoom
}

func (c *Client) readPump() {
	defer func() {
		c.gw.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20) // audio chunks are base64
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.gw.handleCommand(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
