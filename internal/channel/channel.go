// Package channel defines the per-room presence channel: a presence table
// holding one snapshot per participant key, plus fire-and-forget broadcasts.
package channel

import (
	"context"
	"errors"

	"github.com/pixil98/go-office/internal/office"
)

// Broadcast event names.
const (
	EventChat     = "chat"
	EventReaction = "reaction"
)

var (
	ErrNotSubscribed = errors.New("channel not subscribed")
	ErrClosed        = errors.New("channel closed")
)

// ChatPayload is the body of a chat broadcast.
type ChatPayload struct {
	Id         string            `json:"id,omitempty"`
	Text       string            `json:"text"`
	Channel    office.ChannelTag `json:"channel"`
	UserId     string            `json:"userId"`
	SenderName string            `json:"senderName"`
	Time       string            `json:"time"`
}

// ReactionPayload is the body of a reaction broadcast.
type ReactionPayload struct {
	UserId string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Sink receives events for one subscription. Calls may arrive from any
// goroutine and must not block for long.
type Sink interface {
	// PresenceSync signals that the presence table changed. It carries no
	// payload; the receiver reads PresenceState.
	PresenceSync()
	Broadcast(event string, payload []byte)
	// Disconnected reports that the subscription was lost without Unsubscribe.
	Disconnected(err error)
}

// Channel is one participant's handle on a room.
type Channel interface {
	// Subscribe starts event delivery and returns once the subscription is confirmed.
	Subscribe(ctx context.Context, sink Sink) error
	// Track publishes the full snapshot for this channel's key, replacing any previous one.
	Track(ctx context.Context, snapshot office.Snapshot) error
	// PresenceState returns the current presence table keyed by participant.
	PresenceState() map[string]office.Snapshot
	// Broadcast sends an event to the other subscribers of the room.
	Broadcast(ctx context.Context, event string, payload []byte) error
	// Unsubscribe stops delivery and removes this key from the presence table.
	Unsubscribe(ctx context.Context) error
}

// Transport opens room channels.
type Transport interface {
	Open(roomId, key string) (Channel, error)
}
