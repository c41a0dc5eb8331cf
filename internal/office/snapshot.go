package office

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

const (
	DefaultDisplayName = "Anônimo"
	DefaultEmoji       = "😊"
	DefaultActivity    = "Online"
)

// Status is the availability a participant advertises to the room.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBusy      Status = "busy"
	StatusFocus     Status = "focus"
	StatusMeeting   Status = "meeting"
	StatusAway      Status = "away"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusFocus, StatusMeeting, StatusAway:
		return true
	}
	return false
}

// Snapshot is the complete observable state of one participant. It is always
// published whole; a newer snapshot for the same participant replaces the old one.
type Snapshot struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Status      Status `json:"status"`
	DisplayName string `json:"display_name"`
	Emoji       string `json:"emoji"`
	AvatarURL   string `json:"avatar_url"` // empty means render the emoji
	Role        string `json:"role"`
	Team        string `json:"team"`
	Activity    string `json:"activity"`
	AvatarIdx   int    `json:"avatar_idx"`
}

// WithDefaults returns a copy of s with blank display fields filled in.
func (s Snapshot) WithDefaults() Snapshot {
	if s.Status == "" {
		s.Status = StatusAvailable
	}
	if s.DisplayName == "" {
		s.DisplayName = DefaultDisplayName
	}
	if s.Emoji == "" {
		s.Emoji = DefaultEmoji
	}
	if s.Activity == "" {
		s.Activity = DefaultActivity
	}
	if s.AvatarIdx < 0 {
		s.AvatarIdx = 0
	}
	return s
}

func (s Snapshot) Validate() error {
	el := errors.NewErrorList()

	if s.X < 0 || s.X >= MapCols {
		el.Add(fmt.Errorf("x must be between 0 and %d", MapCols-1))
	}
	if s.Y < 0 || s.Y >= MapRows {
		el.Add(fmt.Errorf("y must be between 0 and %d", MapRows-1))
	}
	if !s.Status.Valid() {
		el.Add(fmt.Errorf("unknown status %q", s.Status))
	}

	return el.Err()
}

// ChannelTag partitions chat messages into named streams.
type ChannelTag string

const (
	ChannelGeneral   ChannelTag = "geral"
	ChannelProximity ChannelTag = "proximity"
	ChannelOffers    ChannelTag = "ofertas"
	ChannelRandom    ChannelTag = "random"
)

// ChannelTags lists the tags in display order.
var ChannelTags = []ChannelTag{ChannelGeneral, ChannelProximity, ChannelOffers, ChannelRandom}

func (c ChannelTag) Valid() bool {
	for _, t := range ChannelTags {
		if c == t {
			return true
		}
	}
	return false
}
