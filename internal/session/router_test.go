package session

import (
	"testing"

	"github.com/kvistad/parley/internal/wire"
)

func msgFrame(dest, content string) wire.Frame {
	return wire.Frame{
		Type:        wire.FrameMessage,
		Destination: dest,
		Message:     &wire.Message{SenderID: 1, RecipientID: 2, Content: content},
	}
}

func TestRouter_DispatchToAttachedHandler(t *testing.T) {
	r := NewRouter()
	var got []string
	r.Attach("user.2.queue.messages", func(m wire.Message) {
		got = append(got, m.Content)
	})

	if !r.Dispatch(msgFrame("user.2.queue.messages", "hi")) {
		t.Fatal("dispatch should report handled")
	}
	if len(got) != 1 || got[0] != "hi" {
		t.Errorf("handler got %v", got)
	}
}

func TestRouter_UnattachedDestinationDropped(t *testing.T) {
	r := NewRouter()
	if r.Dispatch(msgFrame("user.99.queue.messages", "hi")) {
		t.Error("frame for unattached destination must be dropped")
	}
}

func TestRouter_AttachReplacesHandler(t *testing.T) {
	r := NewRouter()
	first, second := 0, 0
	r.Attach("d", func(wire.Message) { first++ })
	r.Attach("d", func(wire.Message) { second++ })

	r.Dispatch(msgFrame("d", "x"))
	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d; replacement must be silent and total", first, second)
	}
}

func TestRouter_Detach(t *testing.T) {
	r := NewRouter()
	calls := 0
	r.Attach("d", func(wire.Message) { calls++ })
	r.Detach("d")
	r.Detach("d") // no-op

	if r.Dispatch(msgFrame("d", "x")) {
		t.Error("detached destination must drop frames")
	}
	if calls != 0 {
		t.Errorf("handler called %d times after detach", calls)
	}
}

func TestRouter_IgnoresNonMessageFrames(t *testing.T) {
	r := NewRouter()
	calls := 0
	r.Attach("d", func(wire.Message) { calls++ })

	if r.Dispatch(wire.Frame{Type: wire.FrameError, Destination: "d", Error: "boom"}) {
		t.Error("error frame must not dispatch")
	}
	if r.Dispatch(wire.Frame{Type: wire.FrameMessage, Destination: "d"}) {
		t.Error("message frame without body must not dispatch")
	}
	if calls != 0 {
		t.Errorf("handler called %d times", calls)
	}
}

func TestRouter_Destinations(t *testing.T) {
	r := NewRouter()
	r.Attach("a", func(wire.Message) {})
	r.Attach("b", func(wire.Message) {})
	dests := r.Destinations()
	if len(dests) != 2 {
		t.Fatalf("destinations = %v, want 2 entries", dests)
	}
}
