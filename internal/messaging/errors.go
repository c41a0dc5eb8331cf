package messaging

import "errors"

var (
	ErrConnClosed    = errors.New("nats connection closed")
	ErrWatchStopped  = errors.New("presence watch stopped")
	ErrAlreadyJoined = errors.New("channel already subscribed")
	ErrConnLost      = errors.New("nats connection lost")
)
