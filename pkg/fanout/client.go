package fanout

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait bounds a single frame write to a client
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read
	// side gives up on it. Pings go out at pingPeriod to keep healthy
	// clients inside the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; clients only send small
	// request envelopes.
	maxMessageSize = 4096

	// sendQueueSize is the per-client outbound buffer. When a client
	// falls this far behind, its oldest queued messages are discarded.
	sendQueueSize = 32
)

// client is one live websocket connection. The hub writes to send, the
// write pump drains it, and the read pump feeds inbound envelopes to
// the server's dispatcher.
type client struct {
	id      string
	remote  string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Uint64
	logger  zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *client {
	id := uuid.New().String()
	return &client{
		id:     id,
		remote: conn.RemoteAddr().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: logger.With().Str("client_id", id).Logger(),
	}
}

// queue encodes one envelope straight into the client's send buffer,
// bypassing the hub. Only the connection handler uses it, before the
// client is registered.
func (c *client) queue(event string, data interface{}) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to encode push event")
		return
	}
	c.enqueue(msg)
}

// enqueue adds msg to the send queue, discarding the oldest queued
// message while the queue is full. The hub never blocks on a slow
// client.
func (c *client) enqueue(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
		default:
		}
	}
}

// readPump consumes inbound frames until the connection dies, handing
// each one to handle. It owns detaching the client from the hub.
func (c *client) readPump(handle func(*client, []byte)) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				c.logger.Debug().Err(err).Msg("Live-update client read error")
			}
			return
		}
		handle(c, data)
	}
}

// writePump drains the send queue onto the wire and keeps the
// connection alive with pings. A closed send queue means the hub has
// let go of the client; the pump says goodbye and exits.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
