package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/history"
	"github.com/pixil98/go-office/internal/office"
)

// UpdatePresence replaces the tracked snapshot. Delivery is not awaited.
func (s *Session) UpdatePresence(ctx context.Context, snap office.Snapshot) error {
	snap = snap.WithDefaults()
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	var (
		ch      channel.Channel
		joinErr error
	)
	err := s.exec(func() {
		if ch, joinErr = s.joined(); joinErr != nil {
			return
		}
		s.snapshot = snap
	})
	if err != nil {
		return err
	}
	if joinErr != nil {
		return joinErr
	}
	return s.enqueue(ctx, s.trackWrite(ch, snap))
}

// Snapshot returns the last snapshot passed to Join or UpdatePresence.
func (s *Session) Snapshot() office.Snapshot {
	var snap office.Snapshot
	_ = s.exec(func() { snap = s.snapshot })
	return snap
}

// Heartbeat republishes the current snapshot. It does nothing unless connected.
func (s *Session) Heartbeat(ctx context.Context) error {
	var (
		ch   channel.Channel
		snap office.Snapshot
	)
	err := s.exec(func() {
		if s.current != StateConnected {
			return
		}
		ch, snap = s.ch, s.snapshot
	})
	if err != nil || ch == nil {
		return err
	}
	return s.enqueue(ctx, s.trackWrite(ch, snap))
}

// SendMessage appends text to the local sequence, broadcasts it and
// persists it. Blank text is ignored. An empty tag means the general channel.
func (s *Session) SendMessage(ctx context.Context, text string, tag office.ChannelTag) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if tag == "" {
		tag = office.ChannelGeneral
	}

	now := s.clock.Now()
	msg := Message{
		Id:         s.newId(),
		Text:       text,
		Channel:    tag,
		UserId:     s.identity,
		SenderName: LocalSenderLabel,
		Time:       s.formatTime(now),
		Local:      true,
	}

	var (
		ch         channel.Channel
		senderName string
		joinErr    error
	)
	err := s.exec(func() {
		if ch, joinErr = s.joined(); joinErr != nil {
			return
		}
		senderName = s.snapshot.DisplayName
		s.log.append(msg)
		s.notifyMessages()
		s.persist(msg, senderName, now)
	})
	if err != nil {
		return err
	}
	if joinErr != nil {
		return joinErr
	}
	s.recorder.MessageSent()

	payload, err := json.Marshal(channel.ChatPayload{
		Id:         msg.Id,
		Text:       msg.Text,
		Channel:    msg.Channel,
		UserId:     msg.UserId,
		SenderName: senderName,
		Time:       msg.Time,
	})
	if err != nil {
		return fmt.Errorf("marshalling chat payload: %w", err)
	}
	return s.enqueue(ctx, s.broadcastWrite(ch, channel.EventChat, payload))
}

// SendReaction shows emoji over the local avatar and broadcasts it.
func (s *Session) SendReaction(ctx context.Context, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil
	}

	var (
		ch      channel.Channel
		joinErr error
	)
	err := s.exec(func() {
		if ch, joinErr = s.joined(); joinErr != nil {
			return
		}
		s.showReaction(s.identity, emoji)
	})
	if err != nil {
		return err
	}
	if joinErr != nil {
		return joinErr
	}

	payload, err := json.Marshal(channel.ReactionPayload{UserId: s.identity, Emoji: emoji})
	if err != nil {
		return fmt.Errorf("marshalling reaction payload: %w", err)
	}
	return s.enqueue(ctx, s.broadcastWrite(ch, channel.EventReaction, payload))
}

// joined must be called from the event loop.
func (s *Session) joined() (channel.Channel, error) {
	switch {
	case s.current == StateDisconnected:
		return nil, ErrDisconnected
	case s.ch == nil:
		return nil, ErrNotJoined
	}
	return s.ch, nil
}

// persist writes msg to the store in the background. Failures are logged only.
func (s *Session) persist(msg Message, senderName string, at time.Time) {
	if s.store == nil {
		return
	}

	s.spawn(func(ctx context.Context) {
		err := s.store.Insert(ctx, history.Row{
			Id:         msg.Id,
			Text:       msg.Text,
			Channel:    msg.Channel,
			UserId:     msg.UserId,
			SenderName: senderName,
			CreatedAt:  at,
		})
		if err != nil {
			slog.WarnContext(ctx, "persisting chat message", "id", s.identity, "message", msg.Id, "error", err)
			s.recorder.PersistFailed()
		}
	})
}

// showReaction must be called from the event loop.
func (s *Session) showReaction(id string, emoji string) {
	s.reactions.set(id, emoji, func(id string, token uint64) {
		s.post(func() {
			if s.reactions.remove(id, token) {
				s.notifyReactions()
			}
		})
	})
	s.recorder.ReactionShown()
	s.notifyReactions()
}

func (s *Session) trackWrite(ch channel.Channel, snap office.Snapshot) write {
	return write{
		op: "track",
		fn: func(ctx context.Context) error { return ch.Track(ctx, snap) },
	}
}

func (s *Session) broadcastWrite(ch channel.Channel, event string, payload []byte) write {
	return write{
		op: "broadcast " + event,
		fn: func(ctx context.Context) error { return ch.Broadcast(ctx, event, payload) },
	}
}
