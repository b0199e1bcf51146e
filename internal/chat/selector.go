package chat

import (
	"context"
	"sync"

	"github.com/kvistad/parley/internal/wire"
)

// Notification is the out-of-band signal for a message that arrived outside
// the active conversation. It carries enough for a toast; the message
// itself is not buffered anywhere. Selecting that sender later re-fetches
// history, which is the source of truth.
type Notification struct {
	SenderID   uint
	SenderName string
	Content    string
}

// Selector tracks which counterpart's conversation is active (agent role)
// and gates inbound messages: matches for the active pair append to the
// visible log, everything else surfaces as a notification. Selection
// changes rebuild the log from history via the store.
type Selector struct {
	store   *Store
	localID uint
	notify  func(Notification)

	mu       sync.Mutex
	active   Customer
	selected bool
}

// NewSelector creates a Selector in the no-selection state. notify may be
// nil, in which case background messages are dropped after gating.
func NewSelector(store *Store, localID uint, notify func(Notification)) *Selector {
	return &Selector{store: store, localID: localID, notify: notify}
}

// Select makes counterpart the active conversation and rebuilds the
// visible log from history. Selecting while a previous load is still in
// flight is safe: the stale result is discarded by the store's generation
// tag. The returned error reports a failed history fetch; the selection
// itself always takes effect.
func (s *Selector) Select(ctx context.Context, counterpart Customer) error {
	s.mu.Lock()
	s.active = counterpart
	s.selected = true
	s.mu.Unlock()

	return s.store.Load(ctx, counterpart.ID)
}

// Clear returns to the no-selection state and empties the visible log.
func (s *Selector) Clear() {
	s.mu.Lock()
	s.active = Customer{}
	s.selected = false
	s.mu.Unlock()

	s.store.Reset()
}

// Active returns the current counterpart, if any.
func (s *Selector) Active() (Customer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.selected
}

// HandleInbound routes one inbound message from the local inbox. Messages
// for the active pair go to the visible log; messages authored by other
// counterparts surface as notifications, with no background buffering.
func (s *Selector) HandleInbound(m wire.Message) {
	s.mu.Lock()
	active, selected := s.active, s.selected
	s.mu.Unlock()

	if selected && m.Between(s.localID, active.ID) {
		s.store.Append(m)
		return
	}

	// Own echoes never toast; they only render inside their conversation.
	if m.SenderID == s.localID {
		return
	}
	if s.notify != nil {
		s.notify(Notification{SenderID: m.SenderID, SenderName: m.SenderName, Content: m.Content})
	}
}
