package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Conn is one WebSocket connection registered with the hub.
type Conn struct {
	hub     *Hub
	ws      *websocket.Conn
	subject string
	send    chan Event
	subs    map[string]struct{} // owned by the hub run loop

	mu     sync.Mutex
	closed bool
}

// ServeWS upgrades the request and runs the connection's pumps until it
// closes. subject is the authenticated owner identity.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, subject string) error {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &Conn{
		hub:     hub,
		ws:      wsConn,
		subject: subject,
		send:    make(chan Event, 64),
		subs:    make(map[string]struct{}),
	}

	select {
	case hub.register <- conn:
	case <-hub.done:
		wsConn.Close()
		return nil
	}

	go conn.writePump()
	conn.readPump(r)
	return nil
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump consumes client messages. A connection that fails to answer
// keepalives within the pong timeout is treated as closed and its
// subscriptions are discarded.
func (c *Conn) readPump(r *http.Request) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.PongTimeout))

		switch msg.Type {
		case MsgSubscribe:
			if msg.ResourceID == "" {
				c.trySend(Event{Type: EventError, Message: "subscribe requires resource_id"})
				continue
			}
			if err := c.hub.authorize(r.Context(), c.subject, msg.ResourceID); err != nil {
				c.trySend(Event{Type: EventError, ResourceID: msg.ResourceID, Message: "not authorized for resource"})
				continue
			}
			select {
			case c.hub.subscribe <- subscription{conn: c, resourceID: msg.ResourceID}:
			case <-c.hub.done:
				return
			}

		case MsgPing:
			c.trySend(Event{Type: EventPong})

		default:
			c.trySend(Event{Type: EventError, Message: "unknown message type: " + msg.Type})
		}
	}
}

// writePump forwards hub events to the socket and emits keepalive pings on
// a fixed interval.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues an event directly on this connection, dropping it if the
// connection is closing or the buffer is full.
func (c *Conn) trySend(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- evt:
	default:
	}
}
