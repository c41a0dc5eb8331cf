package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-testutil"
)

type recordingSink struct {
	mu         sync.Mutex
	syncs      int
	broadcasts []string
	payloads   [][]byte
	disconnect error
}

func (r *recordingSink) PresenceSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs++
}

func (r *recordingSink) Broadcast(event string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event)
	r.payloads = append(r.payloads, payload)
}

func (r *recordingSink) Disconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect = err
}

func (r *recordingSink) broadcastCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.broadcasts)
}

func startServer(t *testing.T) *NatsServer {
	t.Helper()

	srv, err := NewNatsServer(WithPort(-1), WithStoreDir(t.TempDir()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if _, err := srv.Conn(waitCtx); err != nil {
		t.Fatalf("server did not start: %v", err)
	}
	return srv
}

func eventually(t *testing.T, name string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", name)
}

func join(t *testing.T, tr *Transport, room, key string) (channel.Channel, *recordingSink) {
	t.Helper()
	ch, err := tr.Open(room, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink := &recordingSink{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.Subscribe(ctx, sink); err != nil {
		t.Fatalf("subscribe %s: %v", key, err)
	}
	return ch, sink
}

func TestTransport_Open(t *testing.T) {
	tests := map[string]struct {
		room   string
		key    string
		expErr string
	}{
		"valid":        {room: "office", key: "u1"},
		"missing room": {key: "u1", expErr: "room id is required"},
		"missing key":  {room: "office", expErr: "presence key is required"},
	}

	tr := NewTransport(nil)
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Open(tt.room, tt.key)
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransport_PresenceAndBroadcast(t *testing.T) {
	srv := startServer(t)
	tr := NewTransport(srv)
	ctx := context.Background()

	a, sinkA := join(t, tr, "office.main", "ana")
	b, sinkB := join(t, tr, "office.main", "bruno")
	other, sinkOther := join(t, tr, "elsewhere", "carla")
	defer func() { _ = other.Unsubscribe(ctx) }()

	err := a.Track(ctx, office.Snapshot{X: 3, Y: 4, Status: office.StatusBusy, DisplayName: "Ana"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, "ana visible to bruno", func() bool {
		_, ok := b.PresenceState()["ana"]
		return ok
	})
	snap := b.PresenceState()["ana"]
	testutil.AssertEqual(t, "x", snap.X, 3)
	testutil.AssertEqual(t, "status", snap.Status, office.StatusBusy)
	testutil.AssertEqual(t, "other room empty", len(other.PresenceState()), 0)

	err = a.Broadcast(ctx, channel.EventChat, []byte(`{"text":"oi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "bruno receives chat", func() bool { return sinkB.broadcastCount() == 1 })

	sinkB.mu.Lock()
	testutil.AssertEqual(t, "event", sinkB.broadcasts[0], channel.EventChat)
	testutil.AssertEqual(t, "payload", string(sinkB.payloads[0]), `{"text":"oi"}`)
	sinkB.mu.Unlock()

	// Give a self-echo the chance to arrive before asserting it did not.
	time.Sleep(100 * time.Millisecond)
	testutil.AssertEqual(t, "sender skipped", sinkA.broadcastCount(), 0)
	testutil.AssertEqual(t, "other room skipped", sinkOther.broadcastCount(), 0)

	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "ana removed", func() bool {
		_, ok := b.PresenceState()["ana"]
		return !ok
	})
	if err := a.Unsubscribe(ctx); err != nil {
		t.Errorf("unsubscribe again: unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "track after leave", errors.Is(a.Track(ctx, office.Snapshot{}), channel.ErrNotSubscribed), true)
	testutil.AssertEqual(t, "subscribe after leave", errors.Is(a.Subscribe(ctx, sinkA), channel.ErrClosed), true)

	if err := b.Unsubscribe(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransport_LateJoinerSeesExistingPresence(t *testing.T) {
	srv := startServer(t)
	tr := NewTransport(srv)
	ctx := context.Background()

	a, _ := join(t, tr, "office", "ana")
	defer func() { _ = a.Unsubscribe(ctx) }()
	if err := a.Track(ctx, office.Snapshot{X: 1, Y: 1, Status: office.StatusAvailable}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "ana tracked", func() bool { return len(a.PresenceState()) == 1 })

	b, sinkB := join(t, tr, "office", "bruno")
	defer func() { _ = b.Unsubscribe(ctx) }()

	_, ok := b.PresenceState()["ana"]
	testutil.AssertEqual(t, "initial table loaded", ok, true)
	sinkB.mu.Lock()
	testutil.AssertEqual(t, "initial sync", sinkB.syncs >= 1, true)
	sinkB.mu.Unlock()
}

func TestTransport_StaleEntriesHidden(t *testing.T) {
	srv := startServer(t)
	now := time.Now()
	var mu sync.Mutex
	tr := NewTransport(srv, WithStaleAfter(time.Minute), withNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	ctx := context.Background()

	a, _ := join(t, tr, "office", "ana")
	defer func() { _ = a.Unsubscribe(ctx) }()
	if err := a.Track(ctx, office.Snapshot{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "ana tracked", func() bool { return len(a.PresenceState()) == 1 })

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	testutil.AssertEqual(t, "stale hidden", len(a.PresenceState()), 0)
}

func TestTransport_NotSubscribed(t *testing.T) {
	tr := NewTransport(nil)
	ch, err := tr.Open("office", "ana")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	testutil.AssertEqual(t, "track", errors.Is(ch.Track(ctx, office.Snapshot{}), channel.ErrNotSubscribed), true)
	testutil.AssertEqual(t, "broadcast", errors.Is(ch.Broadcast(ctx, channel.EventChat, nil), channel.ErrNotSubscribed), true)
	if err := ch.Unsubscribe(ctx); err != nil {
		t.Errorf("unsubscribe: unexpected error: %v", err)
	}
}

func TestValidEvent(t *testing.T) {
	tests := map[string]struct {
		event  string
		expErr bool
	}{
		"chat":      {event: "chat"},
		"reaction":  {event: "reaction"},
		"empty":     {event: "", expErr: true},
		"dot":       {event: "a.b", expErr: true},
		"wildcard":  {event: "*", expErr: true},
		"full wild": {event: ">", expErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := validEvent(tt.event)
			testutil.AssertEqual(t, "has error", err != nil, tt.expErr)
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	for _, id := range []string{"ana", "user.with.dots", "Zoë ✨"} {
		got, err := decodeKey(encodeKey(id))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		testutil.AssertEqual(t, "id", got, id)
	}
}

func TestTransport_BrokerLossReported(t *testing.T) {
	srv := startServer(t)
	tr := NewTransport(srv)

	_, sink := join(t, tr, "office", "ana")

	srv.ns.Shutdown()

	eventually(t, "disconnect reported", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.disconnect != nil
	})
	sink.mu.Lock()
	defer sink.mu.Unlock()
	testutil.AssertEqual(t, "cause", errors.Is(sink.disconnect, ErrConnLost), true)
}

func TestTransport_UnsubscribeIsNotALoss(t *testing.T) {
	srv := startServer(t)
	tr := NewTransport(srv)
	ctx := context.Background()

	a, sink := join(t, tr, "office", "ana")
	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	srv.ns.Shutdown()
	time.Sleep(200 * time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	testutil.AssertEqual(t, "no disconnect", sink.disconnect == nil, true)
}

func TestTransport_StaleEntrySyncsWithoutTraffic(t *testing.T) {
	srv := startServer(t)
	tr := NewTransport(srv, WithStaleAfter(500*time.Millisecond))
	ctx := context.Background()

	a, _ := join(t, tr, "office", "ana")
	defer func() { _ = a.Unsubscribe(ctx) }()
	b, sinkB := join(t, tr, "office", "bia")
	defer func() { _ = b.Unsubscribe(ctx) }()

	if err := a.Track(ctx, office.Snapshot{X: 3, Y: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventually(t, "bia sees ana", func() bool { return len(b.PresenceState()) == 1 })

	sinkB.mu.Lock()
	before := sinkB.syncs
	sinkB.mu.Unlock()

	// No further writes; ana's entry must drop out on its own.
	eventually(t, "stale sync", func() bool {
		sinkB.mu.Lock()
		defer sinkB.mu.Unlock()
		return sinkB.syncs > before && len(b.PresenceState()) == 0
	})
}
