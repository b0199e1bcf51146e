package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/kvistad/parley/internal/wire"
)

// HistoryFetcher returns the persisted two-way timeline with a counterpart,
// ascending by timestamp. The durable log lives server-side; this is a
// one-shot read.
type HistoryFetcher interface {
	History(ctx context.Context, counterpartID uint) ([]wire.Message, error)
}

// Store is the visible conversation log for the currently relevant
// counterpart: the history-fetch prefix followed by live-appended messages,
// with no entry appearing twice. Each Load bumps a generation; a fetch
// result whose generation has been superseded is discarded, so switching
// conversations mid-fetch can never resurrect the old one.
//
// Appends arrive from the session's dispatch goroutine while loads run on
// the caller's; the mutex serializes the two.
type Store struct {
	fetcher  HistoryFetcher
	onAppend func(wire.Message)

	mu          sync.Mutex
	counterpart uint
	gen         uint64
	msgs        []wire.Message
	seen        map[string]struct{}
}

// NewStore creates an empty Store over the given fetcher.
func NewStore(fetcher HistoryFetcher) *Store {
	return &Store{
		fetcher: fetcher,
		seen:    make(map[string]struct{}),
	}
}

// OnAppend registers a hook invoked for every live message that makes it
// into the log. History loads do not fire it.
func (s *Store) OnAppend(fn func(wire.Message)) {
	s.onAppend = fn
}

// Load makes counterpart the store's conversation and rebuilds the log
// from a fresh history fetch. The previous log is discarded immediately.
// Live messages appended while the fetch is in flight are folded in behind
// the history prefix, minus duplicates. On fetch failure the log is left
// empty rather than partial or stale.
func (s *Store) Load(ctx context.Context, counterpart uint) error {
	gen := s.begin(counterpart)

	history, err := s.fetcher.History(ctx, counterpart)
	if err != nil {
		return fmt.Errorf("chat: load history for %d: %w", counterpart, err)
	}
	s.install(gen, history)
	return nil
}

// begin switches the store to counterpart, clears the visible log, and
// returns the generation tag for the accompanying fetch.
func (s *Store) begin(counterpart uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterpart = counterpart
	s.gen++
	s.msgs = nil
	s.seen = make(map[string]struct{})
	return s.gen
}

// install replaces the log with the fetched history, re-appending any live
// messages that raced the fetch. Results from a superseded generation are
// dropped.
func (s *Store) install(gen uint64, history []wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}

	live := s.msgs
	s.msgs = make([]wire.Message, 0, len(history)+len(live))
	s.seen = make(map[string]struct{}, len(history)+len(live))
	for _, m := range history {
		s.appendLocked(m)
	}
	for _, m := range live {
		s.appendLocked(m)
	}
}

// Append inserts the message at the tail unless its dedupe key is already
// present. Returns whether the message was added.
func (s *Store) Append(m wire.Message) bool {
	s.mu.Lock()
	added := s.appendLocked(m)
	s.mu.Unlock()
	if added && s.onAppend != nil {
		s.onAppend(m)
	}
	return added
}

func (s *Store) appendLocked(m wire.Message) bool {
	key := m.DedupeKey()
	if _, dup := s.seen[key]; dup {
		return false
	}
	s.seen[key] = struct{}{}
	s.msgs = append(s.msgs, m)
	return true
}

// Reset empties the log and invalidates any in-flight load.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counterpart = 0
	s.gen++
	s.msgs = nil
	s.seen = make(map[string]struct{})
}

// Counterpart returns the identity the log currently belongs to (0 when
// none).
func (s *Store) Counterpart() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counterpart
}

// Messages returns a copy of the visible log, in append order.
func (s *Store) Messages() []wire.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of visible messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
