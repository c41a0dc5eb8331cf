package gateway

import (
	"encoding/json"

	"github.com/pixil98/go-office/internal/office"
	"github.com/pixil98/go-office/internal/realtime"
)

// Inbound frame types.
const (
	frameMove     = "move"
	framePresence = "presence"
	frameChat     = "chat"
	frameReaction = "reaction"
	frameJoin     = "join"
)

// Outbound frame types.
const (
	frameState     = "state"
	frameSelf      = "self"
	framePeers     = "peers"
	frameMessages  = "messages"
	frameReactions = "reactions"
	frameError     = "error"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type movePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// presencePayload carries the attributes a client may change. Absent fields are kept.
type presencePayload struct {
	Status    *office.Status `json:"status,omitempty"`
	Emoji     *string        `json:"emoji,omitempty"`
	AvatarURL *string        `json:"avatar_url,omitempty"`
	Activity  *string        `json:"activity,omitempty"`
}

type chatPayload struct {
	Text    string            `json:"text"`
	Channel office.ChannelTag `json:"channel"`
}

type reactionPayload struct {
	Emoji string `json:"emoji"`
}

type statePayload struct {
	State realtime.State `json:"state"`
	Room  string         `json:"room"`
	Id    string         `json:"id"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func encodeFrame(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: frameType, Payload: raw})
}
