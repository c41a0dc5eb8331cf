package channel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-testutil"
)

// recordingSink captures every event delivered to it.
type recordingSink struct {
	mu         sync.Mutex
	syncs      int
	broadcasts []recordedBroadcast
	disconnect error
}

type recordedBroadcast struct {
	event   string
	payload string
}

func (s *recordingSink) PresenceSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
}

func (s *recordingSink) Broadcast(event string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, recordedBroadcast{event: event, payload: string(payload)})
}

func (s *recordingSink) Disconnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect = err
}

func subscribe(t *testing.T, h *Hub, room, key string) (Channel, *recordingSink) {
	t.Helper()
	ch, err := h.Open(room, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink := &recordingSink{}
	if err := ch.Subscribe(context.Background(), sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return ch, sink
}

func TestHub_Open(t *testing.T) {
	h := NewHub()

	_, err := h.Open("", "u1")
	testutil.AssertErrorContains(t, err, "room id is required")

	_, err = h.Open("office", "")
	testutil.AssertErrorContains(t, err, "presence key is required")
}

func TestHub_TrackReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	h := NewHub()
	a, _ := subscribe(t, h, "office", "u1")
	b, sinkB := subscribe(t, h, "office", "u2")

	if err := a.Track(ctx, office.Snapshot{X: 1, Y: 1, DisplayName: "Ana"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Track(ctx, office.Snapshot{X: 2, Y: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := b.PresenceState()
	testutil.AssertEqual(t, "entries", len(state), 1)
	testutil.AssertEqual(t, "x", state["u1"].X, 2)
	testutil.AssertEqual(t, "name replaced", state["u1"].DisplayName, "")
	// one sync on subscribe, two from tracks
	testutil.AssertEqual(t, "syncs", sinkB.syncs, 3)
}

func TestHub_BroadcastSkipsSender(t *testing.T) {
	ctx := context.Background()
	h := NewHub()
	a, sinkA := subscribe(t, h, "office", "u1")
	_, sinkB := subscribe(t, h, "office", "u2")
	_, sinkOther := subscribe(t, h, "lobby", "u3")

	if err := a.Broadcast(ctx, EventChat, []byte(`{"text":"oi"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "sender", len(sinkA.broadcasts), 0)
	testutil.AssertEqual(t, "peer", len(sinkB.broadcasts), 1)
	testutil.AssertEqual(t, "other room", len(sinkOther.broadcasts), 0)
	testutil.AssertEqual(t, "event", sinkB.broadcasts[0].event, EventChat)
	testutil.AssertEqual(t, "payload", sinkB.broadcasts[0].payload, `{"text":"oi"}`)
}

func TestHub_BroadcastEcho(t *testing.T) {
	h := NewHub(WithEcho())
	a, sinkA := subscribe(t, h, "office", "u1")

	if err := a.Broadcast(context.Background(), EventReaction, []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "sender", len(sinkA.broadcasts), 1)
}

func TestHub_UnsubscribeRemovesPresence(t *testing.T) {
	ctx := context.Background()
	h := NewHub()
	a, _ := subscribe(t, h, "office", "u1")
	b, sinkB := subscribe(t, h, "office", "u2")

	if err := a.Track(ctx, office.Snapshot{X: 1, Y: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	syncs := sinkB.syncs

	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "entries", len(b.PresenceState()), 0)
	testutil.AssertEqual(t, "sync on leave", sinkB.syncs, syncs+1)
	testutil.AssertEqual(t, "members", h.Members("office"), 1)

	err := a.Track(ctx, office.Snapshot{})
	if !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("track after unsubscribe = %v, expected %v", err, ErrNotSubscribed)
	}
	err = a.Subscribe(ctx, &recordingSink{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("subscribe after unsubscribe = %v, expected %v", err, ErrClosed)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := NewHub()
	a, sinkA := subscribe(t, h, "office", "u1")
	cause := errors.New("network gone")

	h.Disconnect("office", cause)

	testutil.AssertEqual(t, "cause", errors.Is(sinkA.disconnect, cause), true)
	testutil.AssertEqual(t, "members", h.Members("office"), 0)
	err := a.Broadcast(context.Background(), EventChat, nil)
	if !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("broadcast after disconnect = %v, expected %v", err, ErrNotSubscribed)
	}
}
