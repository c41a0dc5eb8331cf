// Package realtime keeps one participant in sync with a room: the peer map,
// the chat sequence and the reaction map.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
)

const (
	DefaultIOTimeout = 10 * time.Second

	inboxSize  = 64
	outboxSize = 256
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Session is the sync engine for a single identity. All mutable state is
// owned by one event loop goroutine; channel callbacks, timers and store
// results are posted to it. Readers get atomically swapped copies.
type Session struct {
	identity  string
	transport channel.Transport
	store     history.Store

	observer     Observer
	recorder     Recorder
	clock        Clock
	loc          *time.Location
	historyLimit int
	messageLimit int
	reactionTTL  time.Duration
	ioTimeout    time.Duration
	newId        func() string

	inbox    chan func()
	outbox   chan write
	done     chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	// joinMu serializes Join, Leave and Close.
	joinMu    sync.Mutex
	closeOnce sync.Once

	// Owned by the event loop.
	gen       uint64
	roomId    string
	ch        channel.Channel
	snapshot  office.Snapshot
	peers     map[string]office.Snapshot
	log       *messageLog
	reactions *reactionCache
	current   State

	peersView     atomic.Pointer[map[string]office.Snapshot]
	messagesView  atomic.Pointer[[]Message]
	reactionsView atomic.Pointer[map[string]string]
	stateView     atomic.Pointer[State]
}

// write is one outbound channel operation, executed in order.
type write struct {
	op string
	fn func(ctx context.Context) error
}

func New(identity string, transport channel.Transport, store history.Store, opts ...SessionOpt) (*Session, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	s := &Session{
		identity:     identity,
		transport:    transport,
		store:        store,
		observer:     NopObserver{},
		recorder:     nopRecorder{},
		clock:        systemClock{},
		loc:          time.Local,
		historyLimit: DefaultHistoryLimit,
		messageLimit: DefaultMessageLimit,
		reactionTTL:  DefaultReactionTTL,
		ioTimeout:    DefaultIOTimeout,
		newId:        uuid.NewString,
		inbox:        make(chan func(), inboxSize),
		outbox:       make(chan write, outboxSize),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
		peers:        map[string]office.Snapshot{},
		current:      StateIdle,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = newMessageLog(s.messageLimit)
	s.reactions = newReactionCache(s.clock, s.reactionTTL)
	s.publishPeers()
	s.publishMessages()
	s.publishReactions()
	state := StateIdle
	s.stateView.Store(&state)

	s.wg.Add(2)
	go s.run()
	go s.drain()

	return s, nil
}

func (s *Session) Identity() string {
	return s.identity
}

func (s *Session) State() State {
	return *s.stateView.Load()
}

// Peers returns the latest peer map, excluding the local identity.
func (s *Session) Peers() map[string]office.Snapshot {
	return maps.Clone(*s.peersView.Load())
}

// Messages returns the live chat sequence, oldest first.
func (s *Session) Messages() []Message {
	return slices.Clone(*s.messagesView.Load())
}

func (s *Session) Reactions() map[string]string {
	return maps.Clone(*s.reactionsView.Load())
}

func (s *Session) run() {
	defer s.wg.Done()
	defer close(s.loopDone)

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// drain executes outbound writes one at a time so presence updates keep
// their order.
func (s *Session) drain() {
	defer s.wg.Done()

	for {
		select {
		case w := <-s.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), s.ioTimeout)
			err := w.fn(ctx)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, channel.ErrNotSubscribed), errors.Is(err, channel.ErrClosed):
				slog.Debug("dropping write for departed channel", "id", s.identity, "op", w.op)
			default:
				slog.Warn("channel write failed", "id", s.identity, "op", w.op, "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// exec runs fn on the event loop and waits for it to finish.
func (s *Session) exec(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-s.loopDone:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// post queues fn on the event loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// spawn starts background I/O. It must be called from the event loop.
func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.ioTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) enqueue(ctx context.Context, w write) error {
	select {
	case s.outbox <- w:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(state State) {
	if s.current == state {
		return
	}
	s.current = state
	s.stateView.Store(&state)
	s.observer.StateChanged(state)
}

func (s *Session) publishPeers() {
	peers := maps.Clone(s.peers)
	s.peersView.Store(&peers)
}

func (s *Session) publishMessages() {
	msgs := s.log.snapshot()
	s.messagesView.Store(&msgs)
}

func (s *Session) publishReactions() {
	r := s.reactions.snapshot()
	s.reactionsView.Store(&r)
}

func (s *Session) notifyPeers() {
	s.publishPeers()
	s.observer.PeersChanged(s.Peers())
}

func (s *Session) notifyMessages() {
	s.publishMessages()
	s.observer.MessagesChanged(s.Messages())
}

func (s *Session) notifyReactions() {
	s.publishReactions()
	s.observer.ReactionsChanged(s.Reactions())
}

func (s *Session) formatTime(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}
