package server

import (
	"context"
	"sync"
	"time"

	"github.com/kvistad/parley/internal/wire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// client is one live websocket attachment for an authenticated user. A user
// may hold several attachments at once (two browser tabs); each receives its
// own copy of every frame published to a destination it subscribed to.
type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan wire.Frame

	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks connected clients and their destination subscriptions. A frame
// published to a destination reaches only the clients that subscribed to it;
// a connected client that never subscribed receives nothing.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	subs    map[string]map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: map[*client]struct{}{},
		subs:    map[string]map[*client]struct{}{},
	}
}

// Add registers a connection and starts its write and keepalive loops.
func (h *Hub) Add(userID uint, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan wire.Frame, 64),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go c.keepAliveLoop()

	return c
}

// Remove drops a connection and all of its subscriptions.
func (h *Hub) Remove(c *client) {
	c.cancel()

	h.mu.Lock()
	delete(h.clients, c)
	for dest, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, dest)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Subscribe attaches the client to a destination. Subscribing twice is a
// no-op, matching a client that re-registers its handlers after reconnect.
func (h *Hub) Subscribe(c *client, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[dest] == nil {
		h.subs[dest] = map[*client]struct{}{}
	}
	h.subs[dest][c] = struct{}{}
}

// Unsubscribe detaches the client from a destination.
func (h *Hub) Unsubscribe(c *client, dest string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[dest]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, dest)
		}
	}
}

// Publish delivers a frame to every subscriber of the destination and
// returns how many clients it reached. A full send buffer drops the frame
// for that client rather than blocking the broker.
func (h *Hub) Publish(dest string, f wire.Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.subs[dest] {
		select {
		case c.send <- f:
			n++
		default:
		}
	}
	return n
}

// Reply queues a frame on one specific client, bypassing subscriptions.
// Used for error frames answering an invalid send.
func (h *Hub) Reply(c *client, f wire.Frame) {
	select {
	case c.send <- f:
	default:
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.send:
			writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = wsjson.Write(writeCtx, c.conn, f)
			cancel()
		}
	}
}

func (c *client) keepAliveLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
