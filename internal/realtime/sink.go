package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/pixil98/go-office/internal/channel"
	"github.com/pixil98/go-office/internal/office"
)

// sessionSink binds channel callbacks to one join generation. Callbacks from
// a channel the session has since left are dropped on the loop.
type sessionSink struct {
	s   *Session
	gen uint64
	ch  channel.Channel
}

func (k *sessionSink) PresenceSync() {
	k.s.post(func() {
		s := k.s
		if s.gen != k.gen {
			return
		}

		table := k.ch.PresenceState()
		peers := make(map[string]office.Snapshot, len(table))
		for id, snap := range table {
			if id == s.identity {
				continue
			}
			peers[id] = snap
		}
		s.peers = peers
		s.notifyPeers()
		s.recorder.PresenceSynced(len(peers))
	})
}

func (k *sessionSink) Broadcast(event string, payload []byte) {
	switch event {
	case channel.EventChat:
		k.chat(payload)
	case channel.EventReaction:
		k.reaction(payload)
	default:
		slog.Debug("ignoring broadcast", "id", k.s.identity, "event", event)
	}
}

func (k *sessionSink) chat(payload []byte) {
	var p channel.ChatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("decoding chat broadcast", "id", k.s.identity, "error", err)
		return
	}
	// Local sends were appended when they were made.
	if p.UserId == k.s.identity || p.Text == "" {
		return
	}
	if p.Channel == "" {
		p.Channel = office.ChannelGeneral
	}

	msg := Message{
		Id:         p.Id,
		Text:       p.Text,
		Channel:    p.Channel,
		UserId:     p.UserId,
		SenderName: p.SenderName,
		Time:       p.Time,
	}
	k.s.post(func() {
		s := k.s
		if s.gen != k.gen {
			return
		}
		if s.log.append(msg) {
			s.notifyMessages()
			s.recorder.MessageReceived()
		}
	})
}

func (k *sessionSink) reaction(payload []byte) {
	var p channel.ReactionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("decoding reaction broadcast", "id", k.s.identity, "error", err)
		return
	}
	if p.UserId == "" || p.Emoji == "" {
		return
	}

	k.s.post(func() {
		if k.s.gen != k.gen {
			return
		}
		k.s.showReaction(p.UserId, p.Emoji)
	})
}

func (k *sessionSink) Disconnected(err error) {
	k.s.post(func() {
		s := k.s
		if s.gen != k.gen {
			return
		}
		slog.Warn("room channel disconnected", "room", s.roomId, "id", s.identity, "error", err)
		s.setState(StateDisconnected)
	})
}
