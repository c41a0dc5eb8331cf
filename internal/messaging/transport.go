package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/office"
)

const (
	originHeader  = "Office-Origin"
	subjectPrefix = "office"

	DefaultStaleAfter = 2 * time.Minute

	// expirySlack delays the stale sync so the entry is past its deadline.
	expirySlack = 10 * time.Millisecond
)

// Transport maps rooms onto NATS: presence lives in a JetStream key-value
// bucket per room and broadcasts are plain subjects under the room.
type Transport struct {
	conner     Conner
	staleAfter time.Duration
	now        func() time.Time
}

var _ channel.Transport = (*Transport)(nil)

func NewTransport(conner Conner, opts ...TransportOpt) *Transport {
	t := &Transport{
		conner:     conner,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Open(roomId, key string) (channel.Channel, error) {
	if roomId == "" {
		return nil, fmt.Errorf("room id is required")
	}
	if key == "" {
		return nil, fmt.Errorf("presence key is required")
	}

	return &natsChannel{
		t:      t,
		roomId: roomId,
		key:    key,
		origin: uuid.NewString(),
		peers:  map[string]presenceEntry{},
	}, nil
}

type presenceEntry struct {
	snap    office.Snapshot
	created time.Time
}

type natsChannel struct {
	t      *Transport
	roomId string
	key    string
	origin string

	mu         sync.Mutex
	subscribed bool
	closed     bool
	conn       *nats.Conn
	kv         jetstream.KeyValue
	sub        *nats.Subscription
	watcher    jetstream.KeyWatcher
	status     chan nats.Status
	stop       chan struct{}
	peers      map[string]presenceEntry
}

func (c *natsChannel) Subscribe(ctx context.Context, sink channel.Sink) error {
	c.mu.Lock()
	err := c.subscribeLocked(ctx, sink)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	sink.PresenceSync()
	return nil
}

func (c *natsChannel) subscribeLocked(ctx context.Context, sink channel.Sink) error {
	if c.closed {
		return channel.ErrClosed
	}
	if c.subscribed {
		return ErrAlreadyJoined
	}

	conn, err := c.t.conner.Conn(ctx)
	if err != nil {
		return err
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("creating jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucketName(c.roomId),
		History: 1,
		TTL:     c.t.staleAfter,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		return fmt.Errorf("opening presence bucket for room %s: %w", c.roomId, err)
	}

	// The watch outlives the ctx of this call; Unsubscribe stops it.
	watcher, err := kv.WatchAll(context.Background())
	if err != nil {
		return fmt.Errorf("watching presence for room %s: %w", c.roomId, err)
	}
	if err := c.loadInitial(ctx, watcher); err != nil {
		_ = watcher.Stop()
		return err
	}

	sub, err := conn.Subscribe(roomSubject(c.roomId)+".*", func(msg *nats.Msg) {
		if msg.Header.Get(originHeader) == c.origin {
			return
		}
		event := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]
		sink.Broadcast(event, msg.Data)
	})
	if err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("subscribing to room %s: %w", c.roomId, err)
	}

	c.conn = conn
	c.kv = kv
	c.sub = sub
	c.watcher = watcher
	c.status = conn.StatusChanged(nats.DISCONNECTED, nats.RECONNECTING, nats.CLOSED)
	c.stop = make(chan struct{})
	c.subscribed = true

	go c.watch(watcher.Updates(), c.status, c.stop, sink)

	return nil
}

// loadInitial applies entries until the watcher signals it has caught up.
func (c *natsChannel) loadInitial(ctx context.Context, w jetstream.KeyWatcher) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("loading presence for room %s: %w", c.roomId, ctx.Err())
		case entry, ok := <-w.Updates():
			if !ok {
				return ErrWatchStopped
			}
			if entry == nil {
				return nil
			}
			c.apply(entry)
		}
	}
}

// watch applies presence updates until stopped. It reports a lost broker
// connection once and re-syncs whenever the oldest visible entry goes stale.
func (c *natsChannel) watch(updates <-chan jetstream.KeyValueEntry, status <-chan nats.Status, stop <-chan struct{}, sink channel.Sink) {
	expiry := time.NewTimer(time.Hour)
	expiry.Stop()
	defer expiry.Stop()

	c.mu.Lock()
	c.scheduleExpiry(expiry)
	c.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case st := <-status:
			if c.lose() {
				sink.Disconnected(fmt.Errorf("%w: %s", ErrConnLost, st))
			}
			return
		case entry, ok := <-updates:
			if !ok {
				if c.lose() {
					sink.Disconnected(ErrWatchStopped)
				}
				return
			}
			if entry == nil {
				continue
			}
			c.mu.Lock()
			c.apply(entry)
			c.scheduleExpiry(expiry)
			c.mu.Unlock()
			sink.PresenceSync()
		case <-expiry.C:
			c.mu.Lock()
			c.scheduleExpiry(expiry)
			c.mu.Unlock()
			sink.PresenceSync()
		}
	}
}

// lose marks the channel unsubscribed and reports whether the loss was
// unexpected.
func (c *natsChannel) lose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = false
	return !c.closed
}

// scheduleExpiry arms t for the next visible entry to go stale. It must be
// called with c.mu held.
func (c *natsChannel) scheduleExpiry(t *time.Timer) {
	t.Stop()
	if c.t.staleAfter <= 0 {
		return
	}

	now := c.t.now()
	var next time.Time
	for _, e := range c.peers {
		deadline := e.created.Add(c.t.staleAfter)
		if !deadline.After(now) {
			continue
		}
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	if next.IsZero() {
		return
	}
	t.Reset(next.Sub(now) + expirySlack)
}

// apply must be called with c.mu held.
func (c *natsChannel) apply(entry jetstream.KeyValueEntry) {
	id, err := decodeKey(entry.Key())
	if err != nil {
		slog.Warn("ignoring presence entry", "room", c.roomId, "key", entry.Key(), "error", err)
		return
	}

	switch entry.Operation() {
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		delete(c.peers, id)
	case jetstream.KeyValuePut:
		var snap office.Snapshot
		if err := json.Unmarshal(entry.Value(), &snap); err != nil {
			slog.Warn("ignoring presence entry", "room", c.roomId, "id", id, "error", err)
			return
		}
		c.peers[id] = presenceEntry{snap: snap, created: entry.Created()}
	}
}

func (c *natsChannel) Track(ctx context.Context, snap office.Snapshot) error {
	c.mu.Lock()
	kv, ok := c.kv, c.subscribed
	c.mu.Unlock()
	if !ok {
		return channel.ErrNotSubscribed
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	if _, err := kv.Put(ctx, encodeKey(c.key), data); err != nil {
		return fmt.Errorf("tracking presence for %s: %w", c.key, err)
	}
	return nil
}

func (c *natsChannel) PresenceState() map[string]office.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.t.now()
	out := make(map[string]office.Snapshot, len(c.peers))
	for id, e := range c.peers {
		if c.t.staleAfter > 0 && now.Sub(e.created) > c.t.staleAfter {
			continue
		}
		out[id] = e.snap
	}
	return out
}

func (c *natsChannel) Broadcast(ctx context.Context, event string, payload []byte) error {
	if err := validEvent(event); err != nil {
		return err
	}

	c.mu.Lock()
	conn, ok := c.conn, c.subscribed
	c.mu.Unlock()
	if !ok {
		return channel.ErrNotSubscribed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(roomSubject(c.roomId) + "." + event)
	msg.Header.Set(originHeader, c.origin)
	msg.Data = payload
	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s to room %s: %w", event, c.roomId, err)
	}
	return nil
}

func (c *natsChannel) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasSubscribed := c.subscribed
	c.subscribed = false
	conn, kv, sub, watcher, status, stop := c.conn, c.kv, c.sub, c.watcher, c.status, c.stop
	c.peers = map[string]presenceEntry{}
	c.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	conn.RemoveStatusListener(status)

	var firstErr error
	if err := sub.Unsubscribe(); err != nil {
		firstErr = fmt.Errorf("unsubscribing from room %s: %w", c.roomId, err)
	}
	if err := watcher.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("stopping presence watch: %w", err)
	}
	if wasSubscribed {
		if err := kv.Delete(ctx, encodeKey(c.key)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("removing presence for %s: %w", c.key, err)
		}
	}
	return firstErr
}

func validEvent(event string) error {
	if event == "" || strings.ContainsAny(event, ".*> \t") {
		return fmt.Errorf("invalid event name %q", event)
	}
	return nil
}

func bucketName(roomId string) string {
	return "presence_" + base64.RawURLEncoding.EncodeToString([]byte(roomId))
}

func roomSubject(roomId string) string {
	return subjectPrefix + "." + base64.RawURLEncoding.EncodeToString([]byte(roomId)) + ".broadcast"
}

func encodeKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeKey(key string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("decoding presence key: %w", err)
	}
	return string(b), nil
}
