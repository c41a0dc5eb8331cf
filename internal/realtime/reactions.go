package realtime

import "time"

const DefaultReactionTTL = 3 * time.Second

type reaction struct {
	emoji string
	token uint64
	timer Timer
}

// reactionCache holds at most one emoji per identity. Every set restarts
// that identity's window. It is owned by the event loop.
type reactionCache struct {
	clock   Clock
	ttl     time.Duration
	seq     uint64
	entries map[string]reaction
}

func newReactionCache(clock Clock, ttl time.Duration) *reactionCache {
	return &reactionCache{
		clock:   clock,
		ttl:     ttl,
		entries: map[string]reaction{},
	}
}

// set replaces the reaction for id. expire is invoked with the entry token
// once the window closes; it must hand the token back through remove.
func (c *reactionCache) set(id string, emoji string, expire func(id string, token uint64)) {
	if old, ok := c.entries[id]; ok {
		old.timer.Stop()
	}

	c.seq++
	token := c.seq
	c.entries[id] = reaction{
		emoji: emoji,
		token: token,
		timer: c.clock.AfterFunc(c.ttl, func() { expire(id, token) }),
	}
}

// remove deletes id only if its entry still carries token.
func (c *reactionCache) remove(id string, token uint64) bool {
	r, ok := c.entries[id]
	if !ok || r.token != token {
		return false
	}
	delete(c.entries, id)
	return true
}

// clear stops every pending timer.
func (c *reactionCache) clear() bool {
	had := len(c.entries) > 0
	for _, r := range c.entries {
		r.timer.Stop()
	}
	c.entries = map[string]reaction{}
	return had
}

func (c *reactionCache) snapshot() map[string]string {
	out := make(map[string]string, len(c.entries))
	for id, r := range c.entries {
		out[id] = r.emoji
	}
	return out
}
