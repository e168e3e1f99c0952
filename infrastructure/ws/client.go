// Package ws binds the messaging core to its environment transport: a
// bidirectional, message-framed websocket endpoint. The core itself only
// sees contract.EventSink and decoded commands.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// envelope is the wire frame for both directions: an event name plus its
// JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one live websocket connection. It owns the read and write pumps
// and implements contract.EventSink through a bounded send queue: delivery
// to a slow client drops rather than blocking the broadcasting goroutine.
type Client struct {
	id   string
	user domain.User
	conn *websocket.Conn
	send chan envelope
	log  *slog.Logger

	maxMessageSize int64
}

func newClient(id string, user domain.User, conn *websocket.Conn,
	bufferSize int, maxMessageSize int64, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		id:             id,
		user:           user,
		conn:           conn,
		send:           make(chan envelope, bufferSize),
		log:            log,
		maxMessageSize: maxMessageSize,
	}
}

// Connection returns the core's handle for this session.
func (c *Client) Connection() domain.Connection {
	return domain.Connection{ID: c.id, User: c.user}
}

// Consume implements contract.EventSink. Non-blocking by contract: when the
// send queue is full the event is dropped and the error only informs the
// caller's log.
func (c *Client) Consume(_ context.Context, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Name(), err)
	}
	select {
	case c.send <- envelope{Event: e.Name(), Data: data}:
		return nil
	default:
		return fmt.Errorf("send queue full for connection %s, dropping %s", c.id, e.Name())
	}
}

// writePump serializes all writes to the connection and keeps it alive with
// pings. It exits when the per-connection context is canceled or a write
// fails; the handler then tears the whole session down.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug("Write failed, closing connection", "connection", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound envelopes and hands them to dispatch. It returns
// on any read error; disconnect cleanup happens in the handler.
func (c *Client) readPump(ctx context.Context, dispatch func(ctx context.Context, c *Client, env envelope)) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("Unexpected websocket close", "connection", c.id, "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("malformed frame")
			continue
		}
		dispatch(ctx, c, env)
	}
}

// sendError emits a scoped error event to this connection only.
func (c *Client) sendError(message string) {
	if err := c.Consume(context.Background(), event.Error{Message: message}); err != nil {
		c.log.Debug("Could not deliver error event", "connection", c.id, "error", err)
	}
}
