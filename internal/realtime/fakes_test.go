package realtime

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
)

type fakeBroadcast struct {
	event   string
	payload string
}

// fakeChannel records writes and exposes the sink so tests drive events directly.
type fakeChannel struct {
	mu           sync.Mutex
	roomId       string
	sink         channel.Sink
	table        map[string]office.Snapshot
	tracked      []office.Snapshot
	broadcasts   []fakeBroadcast
	subscribeErr error
	unsubscribed int
}

func (c *fakeChannel) Subscribe(_ context.Context, sink channel.Sink) error {
	c.mu.Lock()
	if c.subscribeErr != nil {
		c.mu.Unlock()
		return c.subscribeErr
	}
	c.sink = sink
	c.mu.Unlock()

	sink.PresenceSync()
	return nil
}

func (c *fakeChannel) Track(_ context.Context, snap office.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = append(c.tracked, snap)
	return nil
}

func (c *fakeChannel) PresenceState() map[string]office.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.table)
}

func (c *fakeChannel) Broadcast(_ context.Context, event string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts = append(c.broadcasts, fakeBroadcast{event: event, payload: string(payload)})
	return nil
}

func (c *fakeChannel) Unsubscribe(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed++
	return nil
}

// sync replaces the presence table and fires a sync event.
func (c *fakeChannel) sync(table map[string]office.Snapshot) {
	c.mu.Lock()
	c.table = table
	sink := c.sink
	c.mu.Unlock()
	sink.PresenceSync()
}

func (c *fakeChannel) deliver(event string, payload string) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	sink.Broadcast(event, []byte(payload))
}

func (c *fakeChannel) trackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracked)
}

func (c *fakeChannel) broadcastCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.broadcasts)
}

func (c *fakeChannel) unsubscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribed
}

type fakeTransport struct {
	mu           sync.Mutex
	channels     []*fakeChannel
	subscribeErr error
	openErr      error
}

func (t *fakeTransport) Open(roomId, _ string) (channel.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	c := &fakeChannel{roomId: roomId, subscribeErr: t.subscribeErr}
	t.channels = append(t.channels, c)
	return c, nil
}

func (t *fakeTransport) last() *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[len(t.channels)-1]
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

// fakeStore serves fixed rows. A non-nil gate holds Recent or Insert until it is closed.
type fakeStore struct {
	mu         sync.Mutex
	rows       []history.Row
	inserted   []history.Row
	recentErr  error
	insertErr  error
	recentGate chan struct{}
	insertGate chan struct{}
}

func (s *fakeStore) Recent(ctx context.Context, limit int) ([]history.Row, error) {
	if s.recentGate != nil {
		select {
		case <-s.recentGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *fakeStore) Insert(ctx context.Context, row history.Row) error {
	if s.insertGate != nil {
		select {
		case <-s.insertGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, row)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type countingRecorder struct {
	mu            sync.Mutex
	syncs         int
	sent          int
	received      int
	persistFailed int
	historyFailed int
	reactions     int
}

func (r *countingRecorder) PresenceSynced(int) { r.inc(&r.syncs) }
func (r *countingRecorder) MessageSent() { r.inc(&r.sent) }
func (r *countingRecorder) MessageReceived() { r.inc(&r.received) }
func (r *countingRecorder) PersistFailed() { r.inc(&r.persistFailed) }
func (r *countingRecorder) HistoryFailed() { r.inc(&r.historyFailed) }
func (r *countingRecorder) ReactionShown() { r.inc(&r.reactions) }

func (r *countingRecorder) inc(n *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*n++
}

func (r *countingRecorder) get(n *int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *n
}

func sequentialIds() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("m%d", n)
	}
}

// barrier returns once every event already posted to the loop has run.
func barrier(t *testing.T, s *Session) {
	t.Helper()
	if err := s.exec(func() {}); err != nil {
		t.Fatalf("barrier: %v", err)
	}
}

func eventually(t *testing.T, name string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", name)
}
