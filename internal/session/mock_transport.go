package session

import (
	"context"
	"errors"
	"sync"

	"github.com/kvistad/parley/internal/wire"
)

// errConnDropped is returned from MockConn.ReadFrame after Drop or Close.
var errConnDropped = errors.New("mock conn: connection dropped")

// MockConn implements Conn for testing. Frames queued with Deliver come out
// of ReadFrame in order; written frames are recorded. Drop simulates an
// unexpected transport loss.
type MockConn struct {
	mu       sync.Mutex
	inbound  chan wire.Frame
	written  []wire.Frame
	dropped  bool
	writeErr error
}

// NewMockConn creates a MockConn with a buffered inbound queue.
func NewMockConn() *MockConn {
	return &MockConn{inbound: make(chan wire.Frame, 100)}
}

// ReadFrame returns the next delivered frame, or an error once the
// connection is dropped.
func (m *MockConn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	select {
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	case f, ok := <-m.inbound:
		if !ok {
			return wire.Frame{}, errConnDropped
		}
		return f, nil
	}
}

// WriteFrame records the outbound frame.
func (m *MockConn) WriteFrame(ctx context.Context, f wire.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, f)
	return nil
}

// Close drops the connection. Idempotent.
func (m *MockConn) Close() error {
	m.Drop()
	return nil
}

// Drop simulates the remote end vanishing: pending and future reads fail.
func (m *MockConn) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dropped {
		m.dropped = true
		close(m.inbound)
	}
}

// Deliver queues an inbound frame. Delivery after Drop is discarded.
func (m *MockConn) Deliver(f wire.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped {
		return
	}
	m.inbound <- f
}

// DeliverMessage queues an inbound message frame for a destination.
func (m *MockConn) DeliverMessage(destination string, msg wire.Message) {
	m.Deliver(wire.Frame{Type: wire.FrameMessage, Destination: destination, Message: &msg})
}

// Written returns a snapshot of the recorded outbound frames.
func (m *MockConn) Written() []wire.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.Frame, len(m.written))
	copy(out, m.written)
	return out
}

// SetWriteErr makes subsequent writes fail.
func (m *MockConn) SetWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// MockDialer hands out MockConns and records every dial, so tests can
// script handshake failures and inspect each connection generation.
type MockDialer struct {
	mu      sync.Mutex
	conns   []*MockConn
	err     error
	errOnce bool
}

// Dial implements Dialer.
func (d *MockDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		err := d.err
		if d.errOnce {
			d.err = nil
			d.errOnce = false
		}
		return nil, err
	}
	c := NewMockConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// Fail makes every subsequent dial return err until cleared.
func (d *MockDialer) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	d.errOnce = false
}

// FailOnce makes only the next dial return err.
func (d *MockDialer) FailOnce(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	d.errOnce = true
}

// DialCount returns how many dials have succeeded.
func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conn returns the i-th handed-out connection, or nil.
func (d *MockDialer) Conn(i int) *MockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}
