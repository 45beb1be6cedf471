// Package ws is the progress broadcaster: it pushes snapshot updates to
// WebSocket connections subscribed to a video id. Subscriptions are
// connection-scoped and never persisted.
package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// AuthorizeFunc reports whether subject may subscribe to resourceID.
type AuthorizeFunc func(ctx context.Context, subject, resourceID string) error

// Config tunes the keepalive behavior of hub connections.
type Config struct {
	// PingInterval is how often the server pings each connection.
	PingInterval time.Duration
	// PongTimeout is how long a connection may go without acknowledging
	// a keepalive before it is treated as closed.
	PongTimeout time.Duration
}

// DefaultConfig returns the keepalive defaults.
func DefaultConfig() Config {
	return Config{PingInterval: 30 * time.Second, PongTimeout: 60 * time.Second}
}

type subscription struct {
	conn       *Conn
	resourceID string
}

type countRequest struct {
	resourceID string
	reply      chan int
}

// Hub is the explicit connection/subscription registry. It is created at
// process start, injected where needed, and torn down at shutdown; all
// state is owned by the run loop, so no locking is needed.
type Hub struct {
	config    Config
	authorize AuthorizeFunc

	register    chan *Conn
	unregister  chan *Conn
	subscribe   chan subscription
	unsubscribe chan subscription
	events      chan Event
	counts      chan countRequest
	done        chan struct{}

	conns      map[*Conn]struct{}
	byResource map[string]map[*Conn]struct{}
}

// NewHub creates a hub. authorize guards subscribe requests.
func NewHub(config Config, authorize AuthorizeFunc) *Hub {
	return &Hub{
		config:      config,
		authorize:   authorize,
		register:    make(chan *Conn),
		unregister:  make(chan *Conn),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		events:      make(chan Event, 256),
		counts:      make(chan countRequest),
		done:        make(chan struct{}),
		conns:       make(map[*Conn]struct{}),
		byResource:  make(map[string]map[*Conn]struct{}),
	}
}

// Run processes hub messages until Shutdown is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for conn := range h.conns {
				conn.close()
			}
			return

		case conn := <-h.register:
			h.conns[conn] = struct{}{}

		case conn := <-h.unregister:
			h.drop(conn)

		case sub := <-h.subscribe:
			if _, ok := h.conns[sub.conn]; !ok {
				continue
			}
			set, ok := h.byResource[sub.resourceID]
			if !ok {
				set = make(map[*Conn]struct{})
				h.byResource[sub.resourceID] = set
			}
			set[sub.conn] = struct{}{} // resubscribing is a no-op
			sub.conn.subs[sub.resourceID] = struct{}{}

		case sub := <-h.unsubscribe:
			if set, ok := h.byResource[sub.resourceID]; ok {
				delete(set, sub.conn)
				if len(set) == 0 {
					delete(h.byResource, sub.resourceID)
				}
			}
			delete(sub.conn.subs, sub.resourceID)

		case evt := <-h.events:
			for conn := range h.byResource[evt.ResourceID] {
				select {
				case conn.send <- evt:
				default:
					// Slow consumer: drop the connection rather than
					// block every other subscriber.
					log.Warn().Str("resource_id", evt.ResourceID).Msg("dropping slow websocket consumer")
					h.drop(conn)
				}
			}

		case req := <-h.counts:
			req.reply <- len(h.byResource[req.resourceID])
		}
	}
}

// drop removes a connection and discards all its subscriptions.
func (h *Hub) drop(conn *Conn) {
	if _, ok := h.conns[conn]; !ok {
		return
	}
	delete(h.conns, conn)
	for resourceID := range conn.subs {
		if set, ok := h.byResource[resourceID]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(h.byResource, resourceID)
			}
		}
	}
	conn.close()
}

// Publish pushes an event to every connection subscribed to its resource.
// Delivery is at-least-once per subscriber as long as the connection lives;
// ordering follows the store's monotonic progress.
func (h *Hub) Publish(evt Event) {
	select {
	case h.events <- evt:
	case <-h.done:
	}
}

// SubscriptionCount returns the number of live subscriptions for a resource.
func (h *Hub) SubscriptionCount(resourceID string) int {
	req := countRequest{resourceID: resourceID, reply: make(chan int, 1)}
	select {
	case h.counts <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// Shutdown stops the run loop and closes every connection.
func (h *Hub) Shutdown() {
	close(h.done)
}
