package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pixil98/go-office/internal/driver"
	"github.com/pixil98/go-office/internal/realtime"
)

type member struct {
	client  *client
	session *realtime.Session
}

// Registry tracks live connections by identity. On every driver tick it
// republishes each session's presence.
type Registry struct {
	mu      sync.RWMutex
	members map[string]member
}

var _ driver.Manager = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{members: map[string]member{}}
}

// add reports false if id is already connected.
func (r *Registry) add(id string, c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; ok {
		return false
	}
	r.members[id] = member{client: c}
	return true
}

// bind attaches the session serving c once it exists.
func (r *Registry) bind(id string, c *client, s *realtime.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.members[id]; ok && m.client == c {
		m.session = s
		r.members[id] = m
	}
}

func (r *Registry) remove(id string, c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.members[id]; ok && m.client == c {
		delete(r.members, id)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Registry) sessions() []*realtime.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*realtime.Session, 0, len(r.members))
	for _, m := range r.members {
		if m.session != nil {
			out = append(out, m.session)
		}
	}
	return out
}

func (r *Registry) Tick(ctx context.Context) error {
	for _, s := range r.sessions() {
		if err := s.Heartbeat(ctx); err != nil {
			slog.WarnContext(ctx, "presence heartbeat", "id", s.Identity(), "error", err)
		}
	}
	return nil
}

// CloseAll disconnects every client.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.members {
		m.client.close()
	}
}
