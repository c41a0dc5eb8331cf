package realtime

import "github.com/pixil98/go-office/internal/office"

// Observer is notified on the session's event loop after each published
// view changes. Implementations receive their own copies, must not block
// and must not call back into the Session.
type Observer interface {
	PeersChanged(peers map[string]office.Snapshot)
	MessagesChanged(messages []Message)
	ReactionsChanged(reactions map[string]string)
	StateChanged(state State)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) PeersChanged(map[string]office.Snapshot) {}
func (NopObserver) MessagesChanged([]Message) {}
func (NopObserver) ReactionsChanged(map[string]string) {}
func (NopObserver) StateChanged(State) {}

// Recorder counts engine activity.
type Recorder interface {
	PresenceSynced(peers int)
	MessageSent()
	MessageReceived()
	PersistFailed()
	HistoryFailed()
	ReactionShown()
}

type nopRecorder struct{}

func (nopRecorder) PresenceSynced(int) {}
func (nopRecorder) MessageSent() {}
func (nopRecorder) MessageReceived() {}
func (nopRecorder) PersistFailed() {}
func (nopRecorder) HistoryFailed() {}
func (nopRecorder) ReactionShown() {}
