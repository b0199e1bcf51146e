package session

import (
	"sync"

	"github.com/kvistad/parley/internal/wire"
)

// Handler consumes one inbound message for a destination. Handlers are
// invoked synchronously from the session's read loop, one frame at a time,
// in arrival order.
type Handler func(wire.Message)

// Router maps inbound destinations to handlers. One handler per
// destination; attaching again replaces the previous handler. In practice
// a client attaches exactly one destination, its own private inbox.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Attach registers the handler for a destination, silently replacing any
// previous one.
func (r *Router) Attach(destination string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[destination] = h
}

// Detach removes the handler for a destination. Detaching an unknown
// destination is a no-op.
func (r *Router) Detach(destination string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, destination)
}

// Destinations returns the currently attached destinations.
func (r *Router) Destinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dests := make([]string, 0, len(r.handlers))
	for d := range r.handlers {
		dests = append(dests, d)
	}
	return dests
}

// Dispatch routes a message frame to the handler attached to its
// destination. Frames for destinations with no handler are dropped: during
// a (re)subscription race nobody is listening, and that is acceptable.
// Returns false if the frame was dropped.
func (r *Router) Dispatch(f wire.Frame) bool {
	if f.Type != wire.FrameMessage || f.Message == nil {
		return false
	}
	r.mu.RLock()
	h, ok := r.handlers[f.Destination]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	h(*f.Message)
	return true
}
