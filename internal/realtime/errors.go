package realtime

import "errors"

var (
	ErrNotJoined    = errors.New("session has not joined a room")
	ErrDisconnected = errors.New("session is disconnected")
	ErrClosed       = errors.New("session closed")
)
