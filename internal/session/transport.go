package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kvistad/parley/internal/wire"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrAuthRejected marks a handshake refused by the broker (bad or expired
// credential). Unlike transport loss, it is terminal: the session does not
// retry.
var ErrAuthRejected = errors.New("session: handshake rejected")

// Conn is the minimal surface of an established broker connection. The
// concrete implementation is a websocket; tests substitute MockConn.
type Conn interface {
	// ReadFrame blocks until the next inbound frame arrives or the
	// connection fails.
	ReadFrame(ctx context.Context) (wire.Frame, error)
	// WriteFrame sends one frame to the broker.
	WriteFrame(ctx context.Context, f wire.Frame) error
	// Close tears the connection down.
	Close() error
}

// Dialer opens a connection to the broker endpoint, presenting the bearer
// credential during the handshake.
type Dialer func(ctx context.Context, url, token string) (Conn, error)

// wsConn adapts a nhooyr websocket connection to Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadFrame(ctx context.Context) (wire.Frame, error) {
	var f wire.Frame
	if err := wsjson.Read(ctx, w.c, &f); err != nil {
		return wire.Frame{}, err
	}
	return f, nil
}

func (w *wsConn) WriteFrame(ctx context.Context, f wire.Frame) error {
	return wsjson.Write(ctx, w.c, f)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}

// Dial opens a websocket connection to the broker. The credential travels
// in the Authorization header; a 401/403 during the handshake maps to
// ErrAuthRejected.
func Dial(ctx context.Context, url, token string) (Conn, error) {
	opts := &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	}
	c, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		return nil, fmt.Errorf("session: dial %s: %w", url, err)
	}
	return &wsConn{c: c}, nil
}
