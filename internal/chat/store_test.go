package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kvistad/parley/internal/wire"
)

// fakeBackend implements Backend for tests. A gate channel per counterpart
// lets tests hold a history fetch open to race it against appends and
// later selections.
type fakeBackend struct {
	mu        sync.Mutex
	history   map[uint][]wire.Message
	errs      map[uint]error
	gates     map[uint]chan struct{}
	calls     []uint
	customers []Customer
	agent     Customer
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history: make(map[uint][]wire.Message),
		errs:    make(map[uint]error),
		gates:   make(map[uint]chan struct{}),
	}
}

func (f *fakeBackend) History(ctx context.Context, counterpartID uint) ([]wire.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, counterpartID)
	gate := f.gates[counterpartID]
	msgs := append([]wire.Message(nil), f.history[counterpartID]...)
	err := f.errs[counterpartID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return msgs, err
}

func (f *fakeBackend) Customers(ctx context.Context) ([]Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Customer(nil), f.customers...), nil
}

func (f *fakeBackend) Agent(ctx context.Context) (Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agent, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestStore_LoadReplacesWithHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.history[42] = []wire.Message{
		{ID: 1, SenderID: 1, RecipientID: 42, Content: "hello", Timestamp: ts(0)},
		{ID: 2, SenderID: 42, RecipientID: 1, Content: "hi", Timestamp: ts(1)},
	}
	store := NewStore(backend)

	if err := store.Load(context.Background(), 42); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := store.Messages()
	if len(msgs) != 2 || msgs[0].ID != 1 || msgs[1].ID != 2 {
		t.Errorf("messages = %+v", msgs)
	}
	if store.Counterpart() != 42 {
		t.Errorf("counterpart = %d, want 42", store.Counterpart())
	}

	// Loading another counterpart discards the old log entirely.
	backend.history[43] = []wire.Message{{ID: 3, SenderID: 43, RecipientID: 1, Content: "yo", Timestamp: ts(2)}}
	if err := store.Load(context.Background(), 43); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs = store.Messages()
	if len(msgs) != 1 || msgs[0].ID != 3 {
		t.Errorf("messages after switch = %+v", msgs)
	}
}

func TestStore_AppendDedupesByID(t *testing.T) {
	backend := newFakeBackend()
	backend.history[42] = []wire.Message{{ID: 1, SenderID: 1, RecipientID: 42, Content: "hello", Timestamp: ts(0)}}
	store := NewStore(backend)
	if err := store.Load(context.Background(), 42); err != nil {
		t.Fatalf("load: %v", err)
	}

	// The same persisted message arrives again via live push.
	if store.Append(wire.Message{ID: 1, SenderID: 1, RecipientID: 42, Content: "hello", Timestamp: ts(0)}) {
		t.Error("duplicate id must not append")
	}
	if store.Len() != 1 {
		t.Errorf("len = %d, want 1", store.Len())
	}
}

func TestStore_AppendDedupesByTuple(t *testing.T) {
	store := NewStore(newFakeBackend())
	m := wire.Message{SenderID: 1, RecipientID: 42, Content: "hello", Timestamp: ts(0)}
	if !store.Append(m) {
		t.Fatal("first append should land")
	}
	if store.Append(m) {
		t.Error("identical tuple must not append twice")
	}
	if !store.Append(wire.Message{SenderID: 1, RecipientID: 42, Content: "other", Timestamp: ts(0)}) {
		t.Error("different content should append")
	}
}

func TestStore_AppendPreservesArrivalOrder(t *testing.T) {
	store := NewStore(newFakeBackend())
	store.Append(wire.Message{ID: 1, SenderID: 42, RecipientID: 1, Content: "first"})
	store.Append(wire.Message{ID: 2, SenderID: 1, RecipientID: 42, Content: "second"})
	store.Append(wire.Message{ID: 3, SenderID: 42, RecipientID: 1, Content: "third"})

	msgs := store.Messages()
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Fatalf("position %d = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestStore_StaleLoadDiscarded(t *testing.T) {
	backend := newFakeBackend()
	backend.history[1] = []wire.Message{{ID: 10, SenderID: 1, RecipientID: 5, Content: "old", Timestamp: ts(0)}}
	backend.history[2] = []wire.Message{{ID: 20, SenderID: 2, RecipientID: 5, Content: "new", Timestamp: ts(1)}}
	gate := make(chan struct{})
	backend.gates[1] = gate

	store := NewStore(backend)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Load(context.Background(), 1) // stalls on the gate
	}()

	// Wait for the first fetch to be issued, then switch away.
	deadline := time.Now().Add(2 * time.Second)
	for backend.callCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := store.Load(context.Background(), 2); err != nil {
		t.Fatalf("load 2: %v", err)
	}

	close(gate)
	wg.Wait()

	msgs := store.Messages()
	if len(msgs) != 1 || msgs[0].ID != 20 {
		t.Fatalf("stale history leaked into the log: %+v", msgs)
	}
	if store.Counterpart() != 2 {
		t.Errorf("counterpart = %d, want 2", store.Counterpart())
	}
}

func TestStore_LoadErrorLeavesEmptyLog(t *testing.T) {
	backend := newFakeBackend()
	backend.history[42] = []wire.Message{{ID: 1, SenderID: 1, RecipientID: 42, Content: "old", Timestamp: ts(0)}}
	store := NewStore(backend)
	if err := store.Load(context.Background(), 42); err != nil {
		t.Fatalf("load: %v", err)
	}

	backend.mu.Lock()
	backend.errs[43] = errors.New("backend down")
	backend.mu.Unlock()

	if err := store.Load(context.Background(), 43); err == nil {
		t.Fatal("expected fetch error")
	}
	if store.Len() != 0 {
		t.Errorf("log after failed load = %d messages, want empty", store.Len())
	}
}

func TestStore_LiveAppendsFoldBehindHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.history[42] = []wire.Message{
		{ID: 1, SenderID: 1, RecipientID: 42, Content: "h1", Timestamp: ts(0)},
		{ID: 2, SenderID: 42, RecipientID: 1, Content: "h2", Timestamp: ts(1)},
	}
	gate := make(chan struct{})
	backend.gates[42] = gate

	store := NewStore(backend)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := store.Load(context.Background(), 42); err != nil {
			t.Errorf("load: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for backend.callCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// Live pushes race the in-flight fetch: one brand new, one that is
	// also part of the history result.
	store.Append(wire.Message{ID: 3, SenderID: 42, RecipientID: 1, Content: "live", Timestamp: ts(2)})
	store.Append(wire.Message{ID: 2, SenderID: 42, RecipientID: 1, Content: "h2", Timestamp: ts(1)})

	close(gate)
	wg.Wait()

	msgs := store.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %+v, want 3 entries", msgs)
	}
	for i, want := range []uint{1, 2, 3} {
		if msgs[i].ID != want {
			t.Fatalf("position %d = id %d, want %d", i, msgs[i].ID, want)
		}
	}
}

func TestStore_Reset(t *testing.T) {
	store := NewStore(newFakeBackend())
	store.Append(wire.Message{ID: 1, SenderID: 1, RecipientID: 42, Content: "x"})
	store.Reset()
	if store.Len() != 0 || store.Counterpart() != 0 {
		t.Errorf("reset left len=%d counterpart=%d", store.Len(), store.Counterpart())
	}
}

func TestStore_OnAppendFiresForLiveOnly(t *testing.T) {
	backend := newFakeBackend()
	backend.history[42] = []wire.Message{{ID: 1, SenderID: 1, RecipientID: 42, Content: "h", Timestamp: ts(0)}}
	store := NewStore(backend)

	var notified []uint
	store.OnAppend(func(m wire.Message) { notified = append(notified, m.ID) })

	if err := store.Load(context.Background(), 42); err != nil {
		t.Fatalf("load: %v", err)
	}
	store.Append(wire.Message{ID: 2, SenderID: 42, RecipientID: 1, Content: "live"})
	store.Append(wire.Message{ID: 2, SenderID: 42, RecipientID: 1, Content: "live"}) // dup

	if len(notified) != 1 || notified[0] != 2 {
		t.Errorf("notified = %v, want [2]", notified)
	}
}
