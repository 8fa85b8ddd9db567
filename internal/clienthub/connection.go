package clienthub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/discussiond/engine/internal/wire"
)

// connection owns one client's WebSocket, grounded on the pack's
// mesh.HandleWebSocket upgrade-then-read-loop shape: one goroutine reads and
// dispatches, a second drains a bounded send queue so a slow client never
// blocks the Hub's broadcast path.
type connection struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	send chan any

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(hub *Hub, ws *websocket.Conn) *connection {
	return &connection{
		id:     uuid.New().String(),
		ws:     ws,
		hub:    hub,
		send:   make(chan any, sendQueueDepth),
		closed: make(chan struct{}),
	}
}

// enqueue delivers msg to this connection's writer goroutine. If the
// connection's buffer is saturated the subscriber is dropped: its socket is
// closed, so the client has to reconnect and re-join its rooms (spec §4.8
// backpressure policy).
func (c *connection) enqueue(msg any) {
	select {
	case c.send <- msg:
	default:
		c.close()
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// serve runs the connection's read and write pumps until the socket closes.
// It blocks until the connection terminates.
func (c *connection) serve() {
	c.hub.registerConnection(c)
	defer c.hub.unregisterConnection(c, "closed")

	go c.writePump()

	c.enqueue(wire.NewConnection(c.id, c.hub.serverRestartID))

	c.readPump()
	c.close()
}

func (c *connection) readPump() {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			c.enqueue(wire.NewErrorMessage(wire.ErrBadRequest, err.Error(), "", ""))
			continue
		}
		c.hub.dispatch(c, msg)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
