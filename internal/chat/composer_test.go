package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kvistad/parley/internal/session"
	"github.com/kvistad/parley/internal/wire"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connectedSession(t *testing.T) (*session.Session, *session.MockDialer) {
	t.Helper()
	dialer := &session.MockDialer{}
	sess, err := session.New(session.Opts{
		URL:               "ws://broker.test/ws",
		Dialer:            dialer.Dial,
		ReconnectInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Disconnect)
	sess.Connect()
	waitFor(t, "connected", func() bool { return sess.State() == session.StateConnected })
	return sess, dialer
}

func alwaysActive(id uint) ActiveFunc {
	return func() (uint, bool) { return id, true }
}

func TestComposer_RejectsEmptyDraft(t *testing.T) {
	sess, _ := connectedSession(t)
	comp := NewComposer(sess, 1, alwaysActive(42))

	for _, draft := range []string{"", "   ", "\t\n"} {
		comp.SetDraft(draft)
		if err := comp.Send(context.Background()); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("draft %q: err = %v, want ErrEmptyMessage", draft, err)
		}
	}
}

func TestComposer_RejectsWithoutRecipient(t *testing.T) {
	sess, _ := connectedSession(t)
	comp := NewComposer(sess, 1, func() (uint, bool) { return 0, false })
	comp.SetDraft("hello")

	if err := comp.Send(context.Background()); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("err = %v, want ErrNoRecipient", err)
	}
	if comp.Draft() != "hello" {
		t.Errorf("draft = %q, want preserved", comp.Draft())
	}
}

func TestComposer_NotConnectedKeepsDraft(t *testing.T) {
	dialer := &session.MockDialer{}
	sess, err := session.New(session.Opts{URL: "ws://broker.test/ws", Dialer: dialer.Dial})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	comp := NewComposer(sess, 1, alwaysActive(42))
	comp.SetDraft("Hi")

	if err := comp.Send(context.Background()); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("err = %v, want session.ErrNotConnected", err)
	}
	if comp.Draft() != "Hi" {
		t.Errorf("draft = %q, want preserved for retry", comp.Draft())
	}
}

func TestComposer_SendEmitsAndClearsDraft(t *testing.T) {
	sess, dialer := connectedSession(t)
	comp := NewComposer(sess, 1, alwaysActive(42))
	comp.SetDraft("hello there")

	if err := comp.Send(context.Background()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if comp.Draft() != "" {
		t.Errorf("draft = %q, want cleared after success", comp.Draft())
	}

	written := dialer.Conn(0).Written()
	if len(written) != 1 {
		t.Fatalf("written = %d frames, want 1", len(written))
	}
	f := written[0]
	if f.Type != wire.FrameSend || f.Destination != wire.DestChat {
		t.Errorf("frame = %+v", f)
	}
	m := f.Message
	if m == nil || m.SenderID != 1 || m.RecipientID != 42 || m.Content != "hello there" {
		t.Errorf("message = %+v", m)
	}
	if m != nil && (m.ID != 0 || !m.Timestamp.IsZero()) {
		t.Errorf("outbound message must not carry id or timestamp, got %+v", m)
	}
}
