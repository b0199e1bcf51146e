package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kvistad/parley/internal/session"
	"github.com/kvistad/parley/internal/wire"
)

// Validation and delivery errors surfaced to the user by Send.
var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrNoRecipient  = errors.New("chat: no conversation selected")
)

// ActiveFunc reports the counterpart outbound messages go to. For the
// customer role it constantly returns the well-known agent identity; for
// the agent role it reflects the selector.
type ActiveFunc func() (uint, bool)

// Composer validates and emits outbound messages on the shared transport
// session. It owns the draft text: Send consumes the draft only on
// success, so a failed send leaves it in place for retry. There is no
// optimistic append: a sent message becomes visible only when the broker
// echoes it back through the sender's own inbox.
type Composer struct {
	sess    *session.Session
	localID uint
	active  ActiveFunc

	mu    sync.Mutex
	draft string
}

// NewComposer creates a Composer bound to the shared session.
func NewComposer(sess *session.Session, localID uint, active ActiveFunc) *Composer {
	return &Composer{sess: sess, localID: localID, active: active}
}

// SetDraft replaces the draft text.
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Draft returns the current draft text.
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send validates the draft and emits it to the broker. Failures
// (ErrEmptyMessage, ErrNoRecipient, session.ErrNotConnected) are
// reported without clearing the draft and without queueing; the user
// resends explicitly.
func (c *Composer) Send(ctx context.Context) error {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	if strings.TrimSpace(draft) == "" {
		return ErrEmptyMessage
	}
	recipient, ok := c.active()
	if !ok {
		return ErrNoRecipient
	}

	msg := wire.Message{
		SenderID:    c.localID,
		RecipientID: recipient,
		Content:     draft,
	}
	if err := c.sess.Send(ctx, wire.DestChat, msg); err != nil {
		return err
	}

	c.mu.Lock()
	if c.draft == draft {
		c.draft = ""
	}
	c.mu.Unlock()
	return nil
}
