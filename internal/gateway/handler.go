package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-office/internal/profile"
	"github.com/pixil98/go-office/internal/realtime"
	"golang.org/x/time/rate"
)

const (
	DefaultRoom            = "office"
	DefaultEventsPerSecond = 15
	DefaultBurst           = 30
)

// Metrics is what the gateway reports beyond engine activity.
type Metrics interface {
	realtime.Recorder
	SessionOpened()
	SessionClosed()
	FrameDropped()
}

// Handler upgrades /ws requests and runs one realtime session per connection.
type Handler struct {
	transport channel.Transport
	store     history.Store
	profiles  *profile.Store
	registry  *Registry
	metrics   Metrics

	roomId          string
	eventsPerSecond float64
	burst           int
	loc             *time.Location
	spawn           func() office.Point

	upgrader websocket.Upgrader
}

func NewHandler(transport channel.Transport, store history.Store, profiles *profile.Store, registry *Registry, opts ...HandlerOpt) *Handler {
	h := &Handler{
		transport:       transport,
		store:           store,
		profiles:        profiles,
		registry:        registry,
		metrics:         nopMetrics{},
		roomId:          DefaultRoom,
		eventsPerSecond: DefaultEventsPerSecond,
		burst:           DefaultBurst,
		loc:             time.Local,
		spawn:           office.RandomSpawn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	p, err := h.profiles.Ensure(id, r.URL.Query().Get("name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "websocket upgrade failed", "id", id, "error", err)
		return
	}
	defer func() { _ = ws.Close() }()

	c := newClient(id, h.roomId, ws)
	if !h.registry.add(id, c) {
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected")
		_ = ws.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		return
	}
	defer h.registry.remove(id, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()
	defer wg.Wait()
	defer c.close()

	s, err := realtime.New(id, h.transport, h.store,
		realtime.WithObserver(c),
		realtime.WithRecorder(h.metrics),
		realtime.WithLocation(h.loc),
	)
	if err != nil {
		slog.ErrorContext(ctx, "creating session", "id", id, "error", err)
		return
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.WarnContext(ctx, "closing session", "id", id, "error", err)
		}
	}()

	h.registry.bind(id, c, s)
	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	snap := profile.Snapshot(id, p, h.spawn())
	if err := s.Join(ctx, h.roomId, snap); err != nil {
		slog.WarnContext(ctx, "joining room", "room", h.roomId, "id", id, "error", err)
		c.fail("could not join room, send a join frame to retry")
	} else {
		c.self(snap)
	}

	h.readLoop(ctx, c, s)
}

func (h *Handler) readLoop(ctx context.Context, c *client, s *realtime.Session) {
	limiter := rate.NewLimiter(rate.Limit(h.eventsPerSecond), h.burst)

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "reading frame", "id", c.id, "error", err)
			}
			return
		}

		if !limiter.Allow() {
			h.metrics.FrameDropped()
			c.fail("rate limited")
			continue
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.fail("malformed frame")
			continue
		}

		if err := h.dispatch(ctx, c, s, f); err != nil {
			c.fail(err.Error())
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, s *realtime.Session, f Frame) error {
	switch f.Type {
	case frameMove:
		var p movePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return errors.New("malformed move payload")
		}
		if !office.CanWalk(p.X, p.Y) {
			return fmt.Errorf("cannot walk to %d,%d", p.X, p.Y)
		}
		snap := s.Snapshot()
		snap.X, snap.Y = p.X, p.Y
		return h.updatePresence(ctx, c, s, snap)

	case framePresence:
		var p presencePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return errors.New("malformed presence payload")
		}
		if p.Status != nil && !p.Status.Valid() {
			return fmt.Errorf("unknown status %q", *p.Status)
		}

		snap := s.Snapshot()
		if p.Status != nil {
			snap.Status = *p.Status
		}
		if p.Emoji != nil {
			snap.Emoji = *p.Emoji
		}
		if p.AvatarURL != nil {
			snap.AvatarURL = *p.AvatarURL
		}
		if p.Activity != nil {
			snap.Activity = *p.Activity
		}
		if err := h.updatePresence(ctx, c, s, snap); err != nil {
			return err
		}

		_, err := h.profiles.Apply(c.id, profile.Update{
			Status:    p.Status,
			Emoji:     p.Emoji,
			AvatarURL: p.AvatarURL,
			Activity:  p.Activity,
		})
		if err != nil {
			slog.WarnContext(ctx, "saving profile", "id", c.id, "error", err)
		}
		return nil

	case frameChat:
		var p chatPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return errors.New("malformed chat payload")
		}
		if p.Channel != "" && !p.Channel.Valid() {
			return fmt.Errorf("unknown channel %q", p.Channel)
		}
		return commandError(s.SendMessage(ctx, p.Text, p.Channel))

	case frameReaction:
		var p reactionPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return errors.New("malformed reaction payload")
		}
		return commandError(s.SendReaction(ctx, p.Emoji))

	case frameJoin:
		p, _ := h.profiles.Get(c.id)
		snap := profile.Snapshot(c.id, p, h.spawn())
		if cur := s.Snapshot(); cur.DisplayName != "" {
			snap = cur
		}
		if err := s.Join(ctx, h.roomId, snap); err != nil {
			slog.WarnContext(ctx, "rejoining room", "room", h.roomId, "id", c.id, "error", err)
			return errors.New("could not join room")
		}
		c.self(snap)
		return nil

	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func (h *Handler) updatePresence(ctx context.Context, c *client, s *realtime.Session, snap office.Snapshot) error {
	if err := commandError(s.UpdatePresence(ctx, snap)); err != nil {
		return err
	}
	c.self(snap.WithDefaults())
	return nil
}

// commandError maps engine errors to messages a client can act on.
func commandError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, realtime.ErrDisconnected), errors.Is(err, realtime.ErrNotJoined):
		return errors.New("not connected, send a join frame to retry")
	default:
		return err
	}
}

type nopMetrics struct{}

func (nopMetrics) PresenceSynced(int) {}
func (nopMetrics) MessageSent() {}
func (nopMetrics) MessageReceived() {}
func (nopMetrics) PersistFailed() {}
func (nopMetrics) HistoryFailed() {}
func (nopMetrics) ReactionShown() {}
func (nopMetrics) SessionOpened() {}
func (nopMetrics) SessionClosed() {}
func (nopMetrics) FrameDropped() {}
