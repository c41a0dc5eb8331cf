package channel

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/pixil98/go-office/internal/office"
)

// Hub is an in-process Transport. Every room lives in memory and events are
// delivered synchronously on the publishing goroutine.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*hubRoom

	echo bool
}

type HubOpt func(*Hub)

// WithEcho makes broadcasts loop back to the sending channel as well.
func WithEcho() HubOpt {
	return func(h *Hub) {
		h.echo = true
	}
}

func NewHub(opts ...HubOpt) *Hub {
	h := &Hub{rooms: map[string]*hubRoom{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type hubRoom struct {
	presence map[string]office.Snapshot
	members  map[*hubChannel]struct{}
}

func (h *Hub) Open(roomId, key string) (Channel, error) {
	if roomId == "" {
		return nil, fmt.Errorf("room id is required")
	}
	if key == "" {
		return nil, fmt.Errorf("presence key is required")
	}
	return &hubChannel{hub: h, roomId: roomId, key: key}, nil
}

// Disconnect drops every subscription in a room as if the transport failed.
func (h *Hub) Disconnect(roomId string, cause error) {
	h.mu.Lock()
	r, ok := h.rooms[roomId]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, roomId)
	var sinks []Sink
	for m := range r.members {
		m.subscribed = false
		sinks = append(sinks, m.sink)
	}
	h.mu.Unlock()

	for _, s := range sinks {
		s.Disconnected(cause)
	}
}

// Members returns the number of subscribed channels in a room.
func (h *Hub) Members(roomId string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomId]
	if !ok {
		return 0
	}
	return len(r.members)
}

// room must be called with h.mu held.
func (h *Hub) room(roomId string) *hubRoom {
	r, ok := h.rooms[roomId]
	if !ok {
		r = &hubRoom{
			presence: map[string]office.Snapshot{},
			members:  map[*hubChannel]struct{}{},
		}
		h.rooms[roomId] = r
	}
	return r
}

// sinks must be called with h.mu held.
func (r *hubRoom) sinks(skip *hubChannel) []Sink {
	out := make([]Sink, 0, len(r.members))
	for m := range r.members {
		if m == skip {
			continue
		}
		out = append(out, m.sink)
	}
	return out
}

type hubChannel struct {
	hub    *Hub
	roomId string
	key    string

	// guarded by hub.mu
	sink       Sink
	subscribed bool
	closed     bool
}

func (c *hubChannel) Subscribe(ctx context.Context, sink Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return ErrClosed
	}
	c.sink = sink
	c.subscribed = true
	c.hub.room(c.roomId).members[c] = struct{}{}
	c.hub.mu.Unlock()

	sink.PresenceSync()
	return nil
}

func (c *hubChannel) Track(ctx context.Context, snapshot office.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.hub.mu.Lock()
	if !c.subscribed {
		c.hub.mu.Unlock()
		return ErrNotSubscribed
	}
	r := c.hub.room(c.roomId)
	r.presence[c.key] = snapshot
	sinks := r.sinks(nil)
	c.hub.mu.Unlock()

	for _, s := range sinks {
		s.PresenceSync()
	}
	return nil
}

func (c *hubChannel) PresenceState() map[string]office.Snapshot {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()

	r, ok := c.hub.rooms[c.roomId]
	if !ok || !c.subscribed {
		return map[string]office.Snapshot{}
	}
	return maps.Clone(r.presence)
}

func (c *hubChannel) Broadcast(ctx context.Context, event string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.hub.mu.Lock()
	if !c.subscribed {
		c.hub.mu.Unlock()
		return ErrNotSubscribed
	}
	skip := c
	if c.hub.echo {
		skip = nil
	}
	sinks := c.hub.room(c.roomId).sinks(skip)
	c.hub.mu.Unlock()

	for _, s := range sinks {
		s.Broadcast(event, payload)
	}
	return nil
}

func (c *hubChannel) Unsubscribe(ctx context.Context) error {
	c.hub.mu.Lock()
	if c.closed {
		c.hub.mu.Unlock()
		return nil
	}
	c.closed = true
	wasSubscribed := c.subscribed
	c.subscribed = false

	var sinks []Sink
	if r, ok := c.hub.rooms[c.roomId]; ok && wasSubscribed {
		delete(r.members, c)
		delete(r.presence, c.key)
		sinks = r.sinks(nil)
		if len(r.members) == 0 {
			delete(c.hub.rooms, c.roomId)
		}
	}
	c.hub.mu.Unlock()

	for _, s := range sinks {
		s.PresenceSync()
	}
	return nil
}
