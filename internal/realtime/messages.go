package realtime

import (
	"slices"

	"github.com/pixil98/go-office/internal/office"
)

const (
	DefaultMessageLimit = 200
	DefaultHistoryLimit = 50

	// LocalSenderLabel replaces the sender name on locally sent messages.
	LocalSenderLabel = "Você"

	timeLayout = "15:04"
)

// Message is one entry in the live chat view.
type Message struct {
	Id         string            `json:"id,omitempty"`
	Text       string            `json:"text"`
	Channel    office.ChannelTag `json:"channel"`
	UserId     string            `json:"user_id"`
	SenderName string            `json:"sender_name"`
	Time       string            `json:"time"`
	Local      bool              `json:"local"`
}

// key identifies a message across live delivery and stored history.
func (m Message) key() string {
	if m.Id != "" {
		return "id:" + m.Id
	}
	return "m:" + m.UserId + "\x00" + string(m.Channel) + "\x00" + m.Time + "\x00" + m.Text
}

// messageLog is the bounded, de-duplicated message sequence, oldest first.
type messageLog struct {
	limit int
	items []Message
	keys  map[string]struct{}
}

func newMessageLog(limit int) *messageLog {
	return &messageLog{
		limit: limit,
		keys:  map[string]struct{}{},
	}
}

func (l *messageLog) reset() {
	l.items = nil
	l.keys = map[string]struct{}{}
}

// append adds m unless it is already present, evicting the oldest entry at capacity.
func (l *messageLog) append(m Message) bool {
	k := m.key()
	if _, ok := l.keys[k]; ok {
		return false
	}
	l.items = append(l.items, m)
	l.keys[k] = struct{}{}

	for len(l.items) > l.limit {
		delete(l.keys, l.items[0].key())
		l.items = slices.Delete(l.items, 0, 1)
	}
	return true
}

// seed places history (oldest first) ahead of anything received live so far.
func (l *messageLog) seed(history []Message) {
	live := l.items
	l.reset()
	for _, m := range history {
		l.append(m)
	}
	for _, m := range live {
		l.append(m)
	}
}

func (l *messageLog) snapshot() []Message {
	return slices.Clone(l.items)
}
