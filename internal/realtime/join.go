package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
)

// Join opens the room channel keyed by the session identity and tracks snap
// once the subscription is confirmed. A previous channel is released first.
// History loads in the background and is merged when it arrives.
func (s *Session) Join(ctx context.Context, roomId string, snap office.Snapshot) error {
	if roomId == "" {
		return fmt.Errorf("room id is required")
	}
	snap = snap.WithDefaults()
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	var (
		prev channel.Channel
		gen  uint64
	)
	err := s.exec(func() {
		prev = s.detach()
		gen = s.gen
		s.roomId = roomId
		s.snapshot = snap
		s.log.reset()
		s.notifyMessages()
		s.setState(StateConnecting)
		s.loadHistory(gen)
	})
	if err != nil {
		return err
	}
	s.release(ctx, prev)

	ch, err := s.transport.Open(roomId, s.identity)
	if err != nil {
		s.failJoin(gen)
		return fmt.Errorf("opening room %s: %w", roomId, err)
	}

	if err := ch.Subscribe(ctx, &sessionSink{s: s, gen: gen, ch: ch}); err != nil {
		s.failJoin(gen)
		s.release(ctx, ch)
		return fmt.Errorf("subscribing to room %s: %w", roomId, err)
	}

	err = s.exec(func() {
		s.ch = ch
		s.setState(StateConnected)
	})
	if err != nil {
		s.release(ctx, ch)
		return err
	}

	slog.InfoContext(ctx, "joined room", "room", roomId, "id", s.identity)
	return s.enqueue(ctx, s.trackWrite(ch, snap))
}

// Leave unsubscribes from the current room and cancels pending reaction
// timers. The message sequence stays readable until the next Join.
func (s *Session) Leave(ctx context.Context) error {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	return s.leaveLocked(ctx)
}

func (s *Session) leaveLocked(ctx context.Context) error {
	var (
		prev   channel.Channel
		roomId string
	)
	err := s.exec(func() {
		roomId = s.roomId
		prev = s.detach()
		s.roomId = ""
		s.setState(StateIdle)
	})
	if err != nil {
		return err
	}
	if prev == nil {
		return nil
	}

	if err := prev.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("leaving room %s: %w", roomId, err)
	}
	slog.InfoContext(ctx, "left room", "room", roomId, "id", s.identity)
	return nil
}

// Close leaves the room and stops the session. Commands issued afterwards
// return ErrClosed.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.ioTimeout)
		defer cancel()

		s.joinMu.Lock()
		err = s.leaveLocked(ctx)
		close(s.done)
		s.joinMu.Unlock()

		s.wg.Wait()
	})
	return err
}

// detach drops the current channel from the loop's view and invalidates
// every callback bound to it. It returns the channel for the caller to release.
func (s *Session) detach() channel.Channel {
	prev := s.ch
	s.ch = nil
	s.gen++

	if len(s.peers) > 0 {
		s.peers = map[string]office.Snapshot{}
		s.notifyPeers()
	}
	if s.reactions.clear() {
		s.notifyReactions()
	}
	return prev
}

func (s *Session) release(ctx context.Context, ch channel.Channel) {
	if ch == nil {
		return
	}
	if err := ch.Unsubscribe(ctx); err != nil {
		slog.WarnContext(ctx, "releasing channel", "id", s.identity, "error", err)
	}
}

func (s *Session) failJoin(gen uint64) {
	_ = s.exec(func() {
		if s.gen == gen {
			s.setState(StateDisconnected)
		}
	})
}

// loadHistory fetches recent rows and seeds the sequence if gen is still current.
func (s *Session) loadHistory(gen uint64) {
	if s.store == nil || s.historyLimit <= 0 {
		return
	}

	s.spawn(func(ctx context.Context) {
		rows, err := s.store.Recent(ctx, s.historyLimit)
		if err != nil {
			slog.WarnContext(ctx, "loading chat history", "id", s.identity, "error", err)
			s.recorder.HistoryFailed()
			return
		}

		s.post(func() {
			if s.gen != gen {
				return
			}
			s.log.seed(s.fromRows(rows))
			s.notifyMessages()
		})
	})
}

// fromRows converts newest-first rows into an oldest-first sequence.
func (s *Session) fromRows(rows []history.Row) []Message {
	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, Message{
			Id:         r.Id,
			Text:       r.Text,
			Channel:    r.Channel,
			UserId:     r.UserId,
			SenderName: r.SenderName,
			Time:       s.formatTime(r.CreatedAt),
			Local:      r.UserId == s.identity,
		})
	}
	slices.Reverse(msgs)
	return msgs
}
