// Package session owns the one persistent channel between a Parley client
// and the broker: the connection state machine, the subscription router,
// and the fixed-interval reconnect loop. Exactly one Session exists per
// client process; every higher component composes against it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kvistad/parley/internal/wire"
)

// DefaultReconnectInterval is the fixed delay between reconnection attempts
// after an unexpected transport loss. No backoff or jitter: for a two-party
// low-traffic channel the constant interval is the simpler trade-off.
const DefaultReconnectInterval = 5 * time.Second

// dialTimeout bounds a single handshake attempt.
const dialTimeout = 15 * time.Second

// ErrNotConnected is returned by Send while the channel is down. Sends are
// never queued; the caller decides whether to retry.
var ErrNotConnected = errors.New("session: not connected")

// State is the connection state of the transport session. Only the session
// itself mutates it; everyone else observes.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange is an observable transition. Err is non-nil only when the
// handshake was rejected, which ends the session.
type StateChange struct {
	State State
	Err   error
}

// Opts holds parameters for creating a Session.
type Opts struct {
	URL               string            // broker websocket endpoint
	Token             string            // bearer credential for the handshake
	Dialer            Dialer            // defaults to Dial
	ReconnectInterval time.Duration     // defaults to DefaultReconnectInterval
	OnStateChange     func(StateChange) // optional; called from session goroutines
}

// Session is the transport session. Create with New, establish with
// Connect, tear down with Disconnect.
type Session struct {
	url      string
	token    string
	dial     Dialer
	interval time.Duration
	onState  func(StateChange)
	router   *Router

	mu     sync.Mutex
	state  State
	conn   Conn
	cancel context.CancelFunc
}

// New creates a Session.
func New(opts Opts) (*Session, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("session: url is required")
	}
	dial := opts.Dialer
	if dial == nil {
		dial = Dial
	}
	interval := opts.ReconnectInterval
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &Session{
		url:      opts.URL,
		token:    opts.Token,
		dial:     dial,
		interval: interval,
		onState:  opts.OnStateChange,
		router:   NewRouter(),
	}, nil
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Router returns the subscription router fed by this session's read loop.
func (s *Session) Router() *Router {
	return s.router
}

// Connect establishes the channel asynchronously. While a connection or an
// attempt is already in place it is a no-op. A rejected handshake is
// terminal and surfaced through the state observer; any other failure
// enters the fixed-interval retry loop until Disconnect.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StateConnecting
	s.mu.Unlock()
	s.notify(StateChange{State: StateConnecting})

	go s.run(ctx)
}

// Disconnect tears the channel down and stops any retry loop. Safe to call
// from any state; while already disconnected it is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	already := s.state == StateDisconnected
	s.cancel = nil
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if !already {
		s.notify(StateChange{State: StateDisconnected})
	}
}

// Send emits one message to a broker destination. It fails fast with
// ErrNotConnected instead of queueing while the channel is down.
func (s *Session) Send(ctx context.Context, destination string, msg wire.Message) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	frame := wire.Frame{Type: wire.FrameSend, Destination: destination, Message: &msg}
	if err := conn.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("session: send to %s: %w", destination, err)
	}
	return nil
}

// Subscribe attaches a handler for a destination, replacing any previous
// handler for it, and registers the subscription with the broker once the
// channel is up. Subscriptions survive reconnects without caller
// intervention.
func (s *Session) Subscribe(ctx context.Context, destination string, h Handler) {
	s.router.Attach(destination, h)
	s.writeControl(ctx, wire.Frame{Type: wire.FrameSubscribe, Destination: destination})
}

// Unsubscribe detaches the handler for a destination and deregisters it
// with the broker.
func (s *Session) Unsubscribe(ctx context.Context, destination string) {
	s.router.Detach(destination)
	s.writeControl(ctx, wire.Frame{Type: wire.FrameUnsubscribe, Destination: destination})
}

// writeControl sends a control frame if connected. Failures are logged
// only: the resubscribe pass on the next (re)connect restores broker state.
func (s *Session) writeControl(ctx context.Context, f wire.Frame) {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	if err := conn.WriteFrame(ctx, f); err != nil {
		log.Printf("session: %s %s: %v", f.Type, f.Destination, err)
	}
}

// run is the connection loop: dial, resubscribe, drain frames, and on
// transport loss wait one interval and start over. It exits on Disconnect
// or on a rejected handshake.
func (s *Session) run(ctx context.Context) {
	for {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := s.dial(dialCtx, s.url, s.token)
		cancel()
		if err != nil {
			if errors.Is(err, ErrAuthRejected) {
				log.Printf("session: %v", err)
				s.transition(StateDisconnected, err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Printf("session: connect %s: %v (retrying in %s)", s.url, err, s.interval)
			s.transition(StateReconnecting, nil)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.transition(StateConnected, nil)
		s.resubscribe(ctx, conn)

		err = s.readLoop(ctx, conn)
		conn.Close()
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		log.Printf("session: connection lost: %v (retrying in %s)", err, s.interval)
		s.transition(StateReconnecting, nil)
		if !s.sleep(ctx) {
			return
		}
	}
}

// readLoop drains inbound frames and dispatches message frames to the
// router, one at a time, in arrival order. It returns when the connection
// fails or the session is torn down. Nothing here blocks on history
// fetches or sends, so live frames keep flowing while those are in flight.
func (s *Session) readLoop(ctx context.Context, conn Conn) error {
	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		switch frame.Type {
		case wire.FrameMessage:
			s.router.Dispatch(frame)
		case wire.FrameError:
			log.Printf("session: broker error: %s", frame.Error)
		default:
			// Unknown frame types are ignored for forward compatibility.
		}
	}
}

// resubscribe re-registers every attached destination on a fresh
// connection.
func (s *Session) resubscribe(ctx context.Context, conn Conn) {
	for _, dest := range s.router.Destinations() {
		if err := conn.WriteFrame(ctx, wire.Frame{Type: wire.FrameSubscribe, Destination: dest}); err != nil {
			log.Printf("session: resubscribe %s: %v", dest, err)
			return
		}
	}
}

// sleep waits one reconnect interval. Returns false if the session was
// disconnected while waiting.
func (s *Session) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.interval):
		return true
	}
}

// transition moves to next and notifies the observer. A repeated state
// fires no event.
func (s *Session) transition(next State, err error) {
	s.mu.Lock()
	if s.state == next && err == nil {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.notify(StateChange{State: next, Err: err})
}

func (s *Session) notify(ev StateChange) {
	if s.onState != nil {
		s.onState(ev)
	}
}
